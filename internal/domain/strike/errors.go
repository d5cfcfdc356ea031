package strike

import "errors"

var (
	// ErrEmptyUserID is returned when a strike has no user to land on
	ErrEmptyUserID = errors.New("strike: empty user id")

	// ErrFlagNotFound is returned when the user has never been struck
	ErrFlagNotFound = errors.New("strike: user flag not found")

	ErrInternal = errors.New("strike: internal error")
)
