package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/app"
	"github.com/avelis/chatio/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// domainErr reports whether err is one of the expected, recoverable
// rejections, as opposed to store trouble.
func domainErr(err error) bool {
	return errors.Is(err, domain.ErrInvalidUser) ||
		errors.Is(err, domain.ErrInvalidRoom) ||
		errors.Is(err, domain.ErrUserExists)
}

// Frame is one marshaled message queued for a connection.
type Frame []byte

// ChatController drives the chat protocol for every websocket connection:
// it translates inbound events into registry/coordinator calls and fans the
// results back out as framed responses and broadcasts.
type ChatController struct {
	Registry   *app.Registry
	Rooms      *app.Coordinator
	Hub        *Hub
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewChatController(reg *app.Registry, rooms *app.Coordinator, hub *Hub) *ChatController {
	return &ChatController{Registry: reg, Rooms: rooms, Hub: hub}
}

type WsConn struct {
	conn *websocket.Conn
	send chan Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsConn) TrySend(f Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// session mirrors per-connection driver state: the opaque connection id plus
// the username and room this socket currently believes it owns. The store
// stays authoritative; this only spares a lookup per inbound event.
type session struct {
	id       string
	conn     *WsConn
	username string
	room     string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *ChatController) HandleChat(ctx context.Context, c *gin.Context) {
	id := c.GetString("client_token")
	if id == "" {
		id = uuid.NewString()
	}
	log.Info().Str("module", "signal").Str("cid", id).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsConn{
		conn: ws,
		send: make(chan Frame, 32),
	}
	sess := &session{id: id, conn: conn}

	ctx, cancel := context.WithCancel(ctx)

	ctl.sendJSON(conn, noticeFrame{Type: "notice", Message: "Welcome to ChatIO..."})

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess)
}

// broadcastRoom delivers a frame to every member of a room attached to this
// process, except the excluded username.
func (ctl *ChatController) broadcastRoom(ctx context.Context, room, exclude string, v any) {
	roster, err := ctl.Registry.ListRoomMembers(ctx, room)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("room", room).Msg("broadcast roster")
		return
	}
	for username := range roster {
		if username == exclude {
			continue
		}
		if conn, ok := ctl.Hub.Get(username); ok {
			ctl.sendJSON(conn, v)
		}
	}
}
