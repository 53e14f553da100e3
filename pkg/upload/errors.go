package upload

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredential is returned when no oauth token was supplied.
	ErrMissingCredential = errors.New("no oauth token configured")

	// ErrMissingAvatarName is returned when the avatar name is empty.
	ErrMissingAvatarName = errors.New("avatar name is required")
)

// PreconditionError reports a problem with the local inputs of an upload.
// No provider call is made when one is returned.
type PreconditionError struct {
	Reason string
	Err    error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *PreconditionError) Unwrap() error {
	return e.Err
}
