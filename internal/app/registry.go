package app

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/avelis/chatio/internal/domain"
	"github.com/avelis/chatio/internal/store"
)

// Registry is the authoritative mapping of connected usernames to their
// attributes. All state lives in the shared store so any instance can answer
// for any user; there is no in-process cache to go stale.
type Registry struct {
	store *store.Store
}

func NewRegistry(st *store.Store) *Registry {
	return &Registry{store: st}
}

// AddUser registers a username. The existence check and the insert run inside
// one optimistic transaction on the user's hash key, so two connections racing
// for the same name cannot both win.
func (r *Registry) AddUser(ctx context.Context, user *domain.User) error {
	if user == nil {
		return domain.ErrInvalidUser
	}
	if err := domain.ValidateUsername(user.Username); err != nil {
		return err
	}

	key := r.store.UserKey(user.Username)
	err := r.store.Client().Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return domain.ErrUserExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, r.store.UsersKey(), user.Username)
			pipe.HSet(ctx, key,
				"id", user.ConnectionID,
				"username", user.Username,
				"room", user.Room)
			return nil
		})
		return err
	}, key)

	switch {
	case errors.Is(err, domain.ErrUserExists), errors.Is(err, redis.TxFailedErr):
		// A concurrent registration of the same name invalidates the watch;
		// the loser sees the same outcome as a plain duplicate.
		return domain.ErrUserExists
	case err != nil:
		return &domain.StoreError{Op: "add user", Err: err}
	}

	log.Debug().Str("module", "app.registry").Str("username", user.Username).Msg("added user")
	return nil
}

// RemoveUser deregisters a username. Removing a name that was never
// registered is a no-op, not an error.
func (r *Registry) RemoveUser(ctx context.Context, username string) error {
	if err := domain.ValidateUsername(username); err != nil {
		return err
	}

	_, err := r.store.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, r.store.UsersKey(), username)
		pipe.Del(ctx, r.store.UserKey(username))
		return nil
	})
	if err != nil {
		return &domain.StoreError{Op: "remove user", Err: err}
	}

	log.Debug().Str("module", "app.registry").Str("username", username).Msg("removed user")
	return nil
}

// GetUser returns the stored record, or nil when the username is unknown.
func (r *Registry) GetUser(ctx context.Context, username string) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}

	cmd := r.store.Client().HGetAll(ctx, r.store.UserKey(username))
	if cmd.Err() != nil {
		return nil, &domain.StoreError{Op: "get user", Err: cmd.Err()}
	}
	if len(cmd.Val()) == 0 {
		return nil, nil
	}

	var user domain.User
	if err := cmd.Scan(&user); err != nil {
		return nil, &domain.StoreError{Op: "get user", Err: err}
	}
	return &user, nil
}

func (r *Registry) UserExists(ctx context.Context, username string) (bool, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return false, err
	}

	n, err := r.store.Client().Exists(ctx, r.store.UserKey(username)).Result()
	if err != nil {
		return false, &domain.StoreError{Op: "user exists", Err: err}
	}
	return n > 0, nil
}

// ListUsers returns every registered user keyed by username. The per-user
// hashes are fetched in one pipeline rather than a round trip per member.
func (r *Registry) ListUsers(ctx context.Context) (domain.Roster, error) {
	members, err := r.store.Client().SMembers(ctx, r.store.UsersKey()).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list users", Err: err}
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = r.store.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, member := range members {
			cmds[i] = pipe.HGetAll(ctx, r.store.UserKey(member))
		}
		return nil
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list users", Err: err}
	}

	roster := make(domain.Roster, len(members))
	for _, cmd := range cmds {
		// Index membership can momentarily lead the hash while a concurrent
		// removal is in flight; skip the hole rather than invent a record.
		if len(cmd.Val()) == 0 {
			continue
		}
		var user domain.User
		if err := cmd.Scan(&user); err != nil {
			return nil, &domain.StoreError{Op: "list users", Err: err}
		}
		roster[user.Username] = &user
	}
	return roster, nil
}

// ListRooms returns the names of all currently non-empty rooms.
func (r *Registry) ListRooms(ctx context.Context) ([]string, error) {
	rooms, err := r.store.Client().SMembers(ctx, r.store.RoomsKey()).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list rooms", Err: err}
	}
	return rooms, nil
}

// ListRoomMembers returns the roster of a room. A room nobody occupies simply
// has an empty roster; asking about it is not an error. Like ListUsers, the
// member records come from their hashes in one pipeline.
func (r *Registry) ListRoomMembers(ctx context.Context, room string) (domain.Roster, error) {
	if err := domain.ValidateRoomName(room); err != nil {
		return nil, err
	}

	members, err := r.store.Client().SMembers(ctx, r.store.RoomKey(room)).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list room members", Err: err}
	}

	cmds := make([]*redis.MapStringStringCmd, len(members))
	_, err = r.store.Client().Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, member := range members {
			cmds[i] = pipe.HGetAll(ctx, r.store.UserKey(member))
		}
		return nil
	})
	if err != nil {
		return nil, &domain.StoreError{Op: "list room members", Err: err}
	}

	roster := make(domain.Roster, len(members))
	for i, cmd := range cmds {
		// The member set is authoritative for membership; if the hash is
		// momentarily gone mid-deregistration, keep the member with what
		// the set alone knows.
		if len(cmd.Val()) == 0 {
			roster[members[i]] = &domain.User{Username: members[i], Room: room}
			continue
		}
		var user domain.User
		if err := cmd.Scan(&user); err != nil {
			return nil, &domain.StoreError{Op: "list room members", Err: err}
		}
		roster[user.Username] = &user
	}
	return roster, nil
}
