package domain

// Roster is the enumerated membership of a room, or of the whole server.
// Keys are unique usernames.
type Roster map[string]*User

func ValidateRoomName(room string) error {
	if len(room) == 0 || len(room) > MaxRoomNameLen {
		return ErrInvalidRoom
	}
	return nil
}
