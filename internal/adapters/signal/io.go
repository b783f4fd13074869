package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *ChatController) writePump(ctx context.Context, c *WsConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *ChatController) readPump(ctx context.Context, cancel context.CancelFunc, sess *session) {
	defer func() {
		log.Info().Str("module", "signal").Str("cid", sess.id).Msg("readPump closing")
		ctl.handleDisconnect(ctx, sess)
		cancel()
		sess.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := sess.conn.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("cid", sess.id).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, sess, data)
		}
	}
}

func (ctl *ChatController) handleEvent(ctx context.Context, sess *session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	switch env.Type {
	case "register":
		ctl.handleRegister(ctx, sess, data)
	case "deregister":
		ctl.handleDeregister(ctx, sess)
	case "users":
		ctl.handleUsers(ctx, sess, data)
	case "rooms":
		ctl.handleRooms(ctx, sess)
	case "join":
		ctl.handleJoin(ctx, sess, data)
	case "leave":
		ctl.handleLeave(ctx, sess)
	case "message":
		ctl.handleMessage(ctx, sess, data)
	case "whisper":
		ctl.handleWhisper(ctx, sess, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

func (ctl *ChatController) sendJSON(c *WsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
