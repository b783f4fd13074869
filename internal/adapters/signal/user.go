package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/domain"
)

func (ctl *ChatController) handleRegister(ctx context.Context, sess *session, data []byte) {
	type registerPayload struct {
		Type     string `json:"type"`
		Username string `json:"username"`
	}
	var p registerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad register payload")
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "registered",
			"error": "bad_payload",
		})
		return
	}
	log.Debug().Str("module", "signal").Str("username", p.Username).Msg("registration request")

	user, err := domain.NewUser(p.Username, sess.id)
	if err != nil {
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "registered",
			"error": "Not a valid name",
		})
		return
	}

	switch err := ctl.Registry.AddUser(ctx, user); {
	case errors.Is(err, domain.ErrUserExists):
		ctl.sendJSON(sess.conn, map[string]any{
			"type":  "registered",
			"error": "User already registered",
		})
		return
	case err != nil:
		ctl.storeFailure(sess, err, "register")
		return
	}

	sess.username = user.Username
	ctl.Hub.Attach(user.Username, sess.conn)
	ctl.sendJSON(sess.conn, map[string]any{
		"type":     "registered",
		"username": user.Username,
	})
}

func (ctl *ChatController) handleDeregister(ctx context.Context, sess *session) {
	log.Debug().Str("module", "signal").Str("username", sess.username).Msg("deregistration request")
	if sess.username == "" {
		return
	}

	if sess.room != "" {
		ctl.leaveCurrentRoom(ctx, sess)
	}

	if err := ctl.Registry.RemoveUser(ctx, sess.username); err != nil {
		ctl.storeFailure(sess, err, "deregister")
		return
	}

	username := sess.username
	ctl.Hub.Detach(username)
	sess.username = ""
	ctl.sendJSON(sess.conn, map[string]any{
		"type":     "deregistered",
		"username": username,
	})
}

func (ctl *ChatController) handleUsers(ctx context.Context, sess *session, data []byte) {
	type usersPayload struct {
		Type string `json:"type"`
		Room string `json:"room,omitempty"`
	}
	var p usersPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad users payload")
		return
	}
	log.Debug().Str("module", "signal").Msg("users list requested")

	var (
		roster domain.Roster
		err    error
	)
	if p.Room != "" {
		roster, err = ctl.Registry.ListRoomMembers(ctx, p.Room)
	} else {
		roster, err = ctl.Registry.ListUsers(ctx)
	}
	if err != nil {
		ctl.storeFailure(sess, err, "users")
		return
	}
	ctl.sendJSON(sess.conn, rosterFrame{Type: "users", Users: roster})
}

func (ctl *ChatController) handleRooms(ctx context.Context, sess *session) {
	log.Debug().Str("module", "signal").Msg("rooms list requested")

	rooms, err := ctl.Registry.ListRooms(ctx)
	if err != nil {
		ctl.storeFailure(sess, err, "rooms")
		return
	}
	ctl.sendJSON(sess.conn, struct {
		Type  string   `json:"type"`
		Rooms []string `json:"rooms"`
	}{Type: "rooms", Rooms: rooms})
}

func (ctl *ChatController) handleWhisper(ctx context.Context, sess *session, data []byte) {
	type whisperPayload struct {
		Type     string `json:"type"`
		Username string `json:"username"`
		Message  string `json:"message"`
	}
	var p whisperPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad whisper payload")
		return
	}
	log.Debug().Str("module", "signal").Str("to", p.Username).Msg("whisper received")

	if p.Username == "" {
		ctl.sendJSON(sess.conn, noticeFrame{Type: "notice", Error: "Not a valid name"})
		return
	}

	target, err := ctl.Registry.GetUser(ctx, p.Username)
	if err != nil {
		ctl.storeFailure(sess, err, "whisper")
		return
	}
	if target == nil {
		ctl.sendJSON(sess.conn, noticeFrame{Type: "notice", Error: "No such user"})
		return
	}

	conn, ok := ctl.Hub.Get(target.Username)
	if !ok {
		ctl.sendJSON(sess.conn, noticeFrame{Type: "notice", Error: "User is not reachable"})
		return
	}
	ctl.sendJSON(conn, messageFrame{
		Type:     "whisper",
		Username: sess.username,
		Message:  p.Message,
	})
}

// storeFailure logs an infrastructure error and tells the client something
// generic; retry policy belongs to the client, not the registry.
func (ctl *ChatController) storeFailure(sess *session, err error, op string) {
	log.Error().Err(err).Str("module", "signal").Str("cid", sess.id).Str("op", op).Msg("store failure")
	ctl.sendJSON(sess.conn, noticeFrame{Type: "notice", Error: "Service temporarily unavailable"})
}
