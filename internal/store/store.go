// Package store owns the Redis handle and the key schema shared by every
// chatio instance pointed at the same database.
package store

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Key layout, visible to all processes:
//
//	<prefix>users                 set of registered usernames
//	<prefix>users:<name>          hash {id, username, room}
//	<prefix>rooms                 set of non-empty room names
//	<prefix>rooms:<room>:users    set of member usernames
type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Client exposes the raw handle for transactions and pipelines.
func (s *Store) Client() *redis.Client {
	return s.client
}

func (s *Store) UsersKey() string {
	return s.prefix + "users"
}

func (s *Store) UserKey(username string) string {
	return s.prefix + "users:" + username
}

func (s *Store) RoomsKey() string {
	return s.prefix + "rooms"
}

// RoomKey names the member set of a room.
func (s *Store) RoomKey(room string) string {
	return s.prefix + "rooms:" + room + ":users"
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Reset deletes every key under the store's prefix. Used at startup when
// flush_on_start is set, and by tests to isolate runs. Deliberately scoped:
// a shared Redis must never see FLUSHALL from this service.
func (s *Store) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}
