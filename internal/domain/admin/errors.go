package admin

import "errors"

var (
	// ErrNotAdmin rejects acting users without the admin flag.
	ErrNotAdmin = errors.New("acting user is not an admin")

	// ErrEmptyAdjustment rejects corrections that move nothing.
	ErrEmptyAdjustment = errors.New("adjustment must change at least one balance")
)
