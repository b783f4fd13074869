package app

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/domain"
	"github.com/avelis/chatio/internal/store"
)

// Coordinator owns room membership transitions on top of the Registry's
// primitives. It guarantees each join and leave is atomic against the shared
// store and that a room disappears the moment its last member does. Leaving
// any previous room before joining the next is the connection driver's job.
type Coordinator struct {
	store    *store.Store
	registry *Registry
}

func NewCoordinator(st *store.Store, reg *Registry) *Coordinator {
	return &Coordinator{store: st, registry: reg}
}

// txRetries bounds how often an optimistic transaction is retried after a
// watch invalidation before the failure is surfaced as a store error.
const txRetries = 5

// JoinRoom puts a registered user into a room, creating the room implicitly.
// The existence precondition is checked under a watch on the user's hash, so
// a concurrent deregistration cannot slip a ghost into the member set; room
// index, member set and the user's room attribute move together in one
// transaction.
func (c *Coordinator) JoinRoom(ctx context.Context, username, room string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}
	if err := domain.ValidateRoomName(room); err != nil {
		return err
	}

	userKey := c.store.UserKey(username)
	for i := 0; i < txRetries; i++ {
		err := c.store.Client().Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, userKey).Result()
			if err != nil {
				return err
			}
			if exists == 0 {
				return domain.ErrInvalidUser
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SAdd(ctx, c.store.RoomsKey(), room)
				pipe.SAdd(ctx, c.store.RoomKey(room), username)
				pipe.HSet(ctx, userKey, "room", room)
				return nil
			})
			return err
		}, userKey)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrInvalidUser):
			return domain.ErrInvalidUser
		case err != nil:
			return &domain.StoreError{Op: "join room", Err: err}
		}

		log.Debug().Str("module", "app.rooms").Str("username", username).Str("room", room).Msg("joined room")
		return nil
	}
	return &domain.StoreError{Op: "join room", Err: redis.TxFailedErr}
}

// LeaveRoom takes a registered user out of a room. Membership removal, the
// user's room attribute and the remaining member count are read in one
// transaction; when the count hits zero the room itself is torn down before
// the call returns.
func (c *Coordinator) LeaveRoom(ctx context.Context, username, room string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}
	if err := domain.ValidateRoomName(room); err != nil {
		return err
	}

	userKey := c.store.UserKey(username)
	for i := 0; i < txRetries; i++ {
		var remaining *redis.IntCmd
		err := c.store.Client().Watch(ctx, func(tx *redis.Tx) error {
			exists, err := tx.Exists(ctx, userKey).Result()
			if err != nil {
				return err
			}
			if exists == 0 {
				return domain.ErrInvalidUser
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.SRem(ctx, c.store.RoomKey(room), username)
				pipe.HSet(ctx, userKey, "room", "")
				remaining = pipe.SCard(ctx, c.store.RoomKey(room))
				return nil
			})
			return err
		}, userKey)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrInvalidUser):
			return domain.ErrInvalidUser
		case err != nil:
			return &domain.StoreError{Op: "leave room", Err: err}
		}

		log.Debug().Str("module", "app.rooms").Str("username", username).Str("room", room).
			Int64("remaining", remaining.Val()).Msg("left room")

		if remaining.Val() > 0 {
			return nil
		}
		return c.cleanupRoom(ctx, room)
	}
	return &domain.StoreError{Op: "leave room", Err: redis.TxFailedErr}
}

// cleanupRoom deletes a room that drained to zero members. The member set is
// watched and its cardinality re-checked inside the transaction: a join that
// races the cleanup invalidates the watch and the room survives with its new
// member, which is exactly the required tie-break.
func (c *Coordinator) cleanupRoom(ctx context.Context, room string) error {
	key := c.store.RoomKey(room)
	err := c.store.Client().Watch(ctx, func(tx *redis.Tx) error {
		count, err := tx.SCard(ctx, key).Result()
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, c.store.RoomsKey(), room)
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		log.Debug().Str("module", "app.rooms").Str("room", room).Msg("cleanup lost race to a new member")
		return nil
	}
	if err != nil {
		return &domain.StoreError{Op: "cleanup room", Err: err}
	}

	log.Debug().Str("module", "app.rooms").Str("room", room).Msg("removed empty room")
	return nil
}

// DisconnectUser runs the full teardown for a dropped connection: leave the
// room recorded on the user's hash, then deregister. Both steps are attempted
// even if the first fails, and every failure is reported.
func (c *Coordinator) DisconnectUser(ctx context.Context, username string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}

	var leaveErr error
	user, err := c.registry.GetUser(ctx, username)
	switch {
	case err != nil:
		leaveErr = err
	case user != nil && user.Room != "":
		leaveErr = c.LeaveRoom(ctx, username, user.Room)
	}

	removeErr := c.registry.RemoveUser(ctx, username)
	return errors.Join(leaveErr, removeErr)
}
