package verify

import "errors"

var (
	// ErrNilParam indicates a required collaborator was nil.
	ErrNilParam = errors.New("verify: nil parameter")

	// ErrInvalidObjectID indicates an empty object id.
	ErrInvalidObjectID = errors.New("verify: invalid object id")
)
