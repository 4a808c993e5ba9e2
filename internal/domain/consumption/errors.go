package consumption

import "errors"

var (
	// ErrInvalidInstallationID rejects malformed ids before any external
	// call is made.
	ErrInvalidInstallationID = errors.New("invalid installation id")

	ErrRequestNotFound = errors.New("cid request not found")

	// ErrRequestInFlight throttles a user to one issuance call at a time.
	ErrRequestInFlight = errors.New("a cid request is already in progress")
)
