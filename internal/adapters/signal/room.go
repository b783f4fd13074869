package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/domain"
)

func (ctl *ChatController) handleJoin(ctx context.Context, sess *session, data []byte) {
	type joinPayload struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "joined",
			"error": "bad_payload",
		})
		return
	}
	log.Debug().Str("module", "signal").Str("room", p.Room).Msg("join room request")

	// Needs to be registered before joining a room.
	if sess.username == "" {
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "joined",
			"error": "Not registered. Please register before joining",
		})
		return
	}

	// One room at a time: leave the current room first, as its own
	// transition, before joining the next.
	if sess.room != "" {
		ctl.leaveCurrentRoom(ctx, sess)
	}

	switch err := ctl.Rooms.JoinRoom(ctx, sess.username, p.Room); {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRoom):
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "joined",
			"error": "Not a valid room",
		})
		return
	case domainErr(err):
		// Registration went stale under us (removed by another instance).
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "joined",
			"error": "Not registered. Please register before joining",
		})
		return
	default:
		ctl.storeFailure(sess, err, "join")
		return
	}
	sess.room = p.Room

	roster, err := ctl.Registry.ListRoomMembers(ctx, sess.room)
	if err != nil {
		ctl.storeFailure(sess, err, "join")
		return
	}
	ctl.sendJSON(sess.conn, struct {
		Type  string        `json:"type"`
		Room  string        `json:"room"`
		Users domain.Roster `json:"users"`
	}{Type: "joined", Room: sess.room, Users: roster})

	ctl.broadcastRoom(ctx, sess.room, sess.username, noticeFrame{
		Type:    "notice",
		Message: fmt.Sprintf("%s joined room", sess.username),
	})
}

func (ctl *ChatController) handleLeave(ctx context.Context, sess *session) {
	log.Debug().Str("module", "signal").Str("username", sess.username).Msg("leave room request")

	if sess.username == "" || sess.room == "" {
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "left",
			"error": "Not in a room",
		})
		return
	}
	ctl.leaveCurrentRoom(ctx, sess)
}

// leaveCurrentRoom runs the leave transition for the session's room and emits
// the left/notice frames. The room broadcast goes out after the store already
// dropped the member, so the leaver never receives their own notice.
func (ctl *ChatController) leaveCurrentRoom(ctx context.Context, sess *session) {
	room := sess.room
	if err := ctl.Rooms.LeaveRoom(ctx, sess.username, room); err != nil {
		ctl.storeFailure(sess, err, "leave")
		return
	}
	sess.room = ""

	ctl.sendJSON(sess.conn, leftFrame{Type: "left", Username: sess.username, Room: room})
	ctl.broadcastRoom(ctx, room, sess.username, noticeFrame{
		Type:    "notice",
		Message: fmt.Sprintf("%s left room", sess.username),
	})
}

func (ctl *ChatController) handleMessage(ctx context.Context, sess *session, data []byte) {
	type messagePayload struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	var p messagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}
	log.Debug().Str("module", "signal").Str("username", sess.username).Msg("message received")

	if sess.room == "" {
		ctl.sendJSON(sess.conn, noticeFrame{Type: "notice", Error: "Not in a room"})
		return
	}
	ctl.broadcastRoom(ctx, sess.room, sess.username, messageFrame{
		Type:     "message",
		Username: sess.username,
		Message:  p.Message,
	})
}

// handleDisconnect tears down registry state for a dropped socket. Best
// effort: failures are logged, there is nobody left to notify.
func (ctl *ChatController) handleDisconnect(ctx context.Context, sess *session) {
	if sess.username == "" {
		return
	}
	ctl.Hub.Detach(sess.username)
	if err := ctl.Rooms.DisconnectUser(ctx, sess.username); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("username", sess.username).Msg("disconnect cleanup")
	}
}
