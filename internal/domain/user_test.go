package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUser(t *testing.T) {
	req := require.New(t)

	user, err := NewUser("steve", "conn-1")
	req.NoError(err)
	req.Equal("steve", user.Username)
	req.Equal("conn-1", user.ConnectionID)
	req.Empty(user.Room)

	_, err = NewUser("", "conn-1")
	req.ErrorIs(err, ErrInvalidUser)

	_, err = NewUser(strings.Repeat("x", MaxUsernameLen+1), "conn-1")
	req.ErrorIs(err, ErrInvalidUser)
}

func TestValidateRoomName(t *testing.T) {
	req := require.New(t)

	req.NoError(ValidateRoomName("firefly"))
	req.ErrorIs(ValidateRoomName(""), ErrInvalidRoom)
	req.ErrorIs(ValidateRoomName(strings.Repeat("x", MaxRoomNameLen+1)), ErrInvalidRoom)
}

func TestStoreError_Unwrap(t *testing.T) {
	req := require.New(t)

	inner := ErrInvalidRoom
	err := &StoreError{Op: "join room", Err: inner}
	req.ErrorIs(err, inner)
	req.Contains(err.Error(), "join room")
}
