package domain

import "errors"

var (
	// ErrInvalidUser covers empty, oversized and unknown usernames.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidRoom covers empty and oversized room names.
	ErrInvalidRoom = errors.New("invalid room")
	// ErrUserExists means the username is already registered.
	ErrUserExists = errors.New("user already registered")
)

// StoreError wraps a failure of the backing store so callers can tell
// infrastructure trouble apart from the expected rejections above.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
