// Package domain contains entities without logic, just meta-data and validation
package domain

const (
	MaxUsernameLen = 36
	MaxRoomNameLen = 36
)

// User is one registered, connected participant. ConnectionID is the opaque
// transport-level identifier of the connection that currently owns the name.
type User struct {
	Username     string `json:"username" redis:"username"`
	ConnectionID string `json:"id" redis:"id"`
	Room         string `json:"room,omitempty" redis:"room"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(username, connectionID string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return &User{Username: username, ConnectionID: connectionID}, nil
}

func ValidateUsername(username string) error {
	if len(username) == 0 || len(username) > MaxUsernameLen {
		return ErrInvalidUser
	}
	return nil
}
