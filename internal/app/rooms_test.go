package app

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avelis/chatio/internal/domain"
)

func newTestCoordinator(t *testing.T) (*Registry, *Coordinator) {
	t.Helper()
	st := newTestStore(t)
	reg := NewRegistry(st)
	return reg, NewCoordinator(st, reg)
}

func TestCoordinator_JoinRoom_Validation(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))

	before, err := reg.ListRooms(ctx)
	req.NoError(err)

	req.ErrorIs(rooms.JoinRoom(ctx, "", "firefly"), domain.ErrInvalidUser)
	req.ErrorIs(rooms.JoinRoom(ctx, "steve", ""), domain.ErrInvalidRoom)

	// Rejected joins leave the room index untouched.
	after, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.Equal(before, after)

	roster, err := reg.ListRoomMembers(ctx, "firefly")
	req.NoError(err)
	req.Empty(roster)
}

func TestCoordinator_JoinRoom_UnknownUser(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.ErrorIs(rooms.JoinRoom(ctx, "steve", "firefly"), domain.ErrInvalidUser)

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.Empty(listed)
}

func TestCoordinator_JoinRoom(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.Contains(listed, "firefly")

	roster, err := reg.ListRoomMembers(ctx, "firefly")
	req.NoError(err)
	req.Contains(roster, "steve")

	user, err := reg.GetUser(ctx, "steve")
	req.NoError(err)
	req.Equal("firefly", user.Room)
}

func TestCoordinator_LeaveRoom_Validation(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))

	req.ErrorIs(rooms.LeaveRoom(ctx, "", "firefly"), domain.ErrInvalidUser)
	req.ErrorIs(rooms.LeaveRoom(ctx, "steve", ""), domain.ErrInvalidRoom)
	req.ErrorIs(rooms.LeaveRoom(ctx, "joey", "firefly"), domain.ErrInvalidUser)
}

func TestCoordinator_LeaveRoom_LastMemberRemovesRoom(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))
	req.NoError(rooms.LeaveRoom(ctx, "steve", "firefly"))

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.NotContains(listed, "firefly")

	roster, err := reg.ListRoomMembers(ctx, "firefly")
	req.NoError(err)
	req.Empty(roster)

	user, err := reg.GetUser(ctx, "steve")
	req.NoError(err)
	req.Empty(user.Room)
}

func TestCoordinator_LeaveRoom_OthersRemain(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(reg.AddUser(ctx, joey()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))
	req.NoError(rooms.JoinRoom(ctx, "joey", "firefly"))

	req.NoError(rooms.LeaveRoom(ctx, "steve", "firefly"))

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.Contains(listed, "firefly")

	roster, err := reg.ListRoomMembers(ctx, "firefly")
	req.NoError(err)
	req.Len(roster, 1)
	req.Contains(roster, "joey")
}

func TestCoordinator_RejoinElsewhere(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))
	req.NoError(rooms.LeaveRoom(ctx, "steve", "firefly"))
	req.NoError(rooms.JoinRoom(ctx, "steve", "trek"))

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.Contains(listed, "trek")
	req.NotContains(listed, "firefly")

	user, err := reg.GetUser(ctx, "steve")
	req.NoError(err)
	req.Equal("trek", user.Room)
}

func TestCoordinator_ConcurrentJoin(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	const n = 16
	for i := 0; i < n; i++ {
		req.NoError(reg.AddUser(ctx, &domain.User{
			Username:     fmt.Sprintf("user-%d", i),
			ConnectionID: fmt.Sprintf("conn-%d", i),
		}))
	}

	// All joins land; none may overwrite another's membership.
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- rooms.JoinRoom(ctx, fmt.Sprintf("user-%d", i), "firefly")
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	roster, err := reg.ListRoomMembers(ctx, "firefly")
	req.NoError(err)
	req.Len(roster, n)
}

func TestCoordinator_ConcurrentLeaveAndJoin(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(reg.AddUser(ctx, joey()))

	// Churn the same room: the last leave's cleanup may race a fresh join,
	// but the room must always end up consistent with its member set.
	for i := 0; i < 20; i++ {
		req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))

		var wg sync.WaitGroup
		wg.Add(2)
		var leaveErr, joinErr error
		go func() {
			defer wg.Done()
			leaveErr = rooms.LeaveRoom(ctx, "steve", "firefly")
		}()
		go func() {
			defer wg.Done()
			joinErr = rooms.JoinRoom(ctx, "joey", "firefly")
		}()
		wg.Wait()
		req.NoError(leaveErr)
		req.NoError(joinErr)

		// Joey joined, so the room has to exist with joey in it.
		listed, err := reg.ListRooms(ctx)
		req.NoError(err)
		req.Contains(listed, "firefly")

		roster, err := reg.ListRoomMembers(ctx, "firefly")
		req.NoError(err)
		req.Contains(roster, "joey")

		req.NoError(rooms.LeaveRoom(ctx, "joey", "firefly"))
		listed, err = reg.ListRooms(ctx)
		req.NoError(err)
		req.NotContains(listed, "firefly")
	}
}

func TestCoordinator_DisconnectUser(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))

	req.NoError(rooms.DisconnectUser(ctx, "steve"))

	exists, err := reg.UserExists(ctx, "steve")
	req.NoError(err)
	req.False(exists)

	listed, err := reg.ListRooms(ctx)
	req.NoError(err)
	req.NotContains(listed, "firefly")
}

func TestCoordinator_DisconnectUser_PartialFailure(t *testing.T) {
	req := require.New(t)
	reg, rooms := newTestCoordinator(t)
	ctx := context.Background()

	req.NoError(reg.AddUser(ctx, steve()))
	req.NoError(rooms.JoinRoom(ctx, "steve", "firefly"))

	// With a dead context both the leave side and the remove side fail;
	// neither failure may swallow the other.
	deadCtx, cancel := context.WithCancel(ctx)
	cancel()

	err := rooms.DisconnectUser(deadCtx, "steve")
	req.Error(err)

	var storeErr *domain.StoreError
	req.ErrorAs(err, &storeErr)
	req.ErrorIs(err, context.Canceled)
	req.Contains(err.Error(), "get user")
	req.Contains(err.Error(), "remove user")

	// Nothing was torn down, so a later cleanup still succeeds in full.
	exists, err := reg.UserExists(ctx, "steve")
	req.NoError(err)
	req.True(exists)

	req.NoError(rooms.DisconnectUser(ctx, "steve"))

	exists, err = reg.UserExists(ctx, "steve")
	req.NoError(err)
	req.False(exists)
}

func TestCoordinator_DisconnectUser_NotRegistered(t *testing.T) {
	req := require.New(t)
	_, rooms := newTestCoordinator(t)

	// Deletion is idempotent, so disconnecting an unknown user succeeds.
	req.NoError(rooms.DisconnectUser(context.Background(), "ghost"))
}
