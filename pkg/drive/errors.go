package drive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

var (
	// ErrInvalidContentLength is returned when upload content has a zero or
	// unknown length. No provider call is made.
	ErrInvalidContentLength = errors.New("upload content must have a known, positive length")

	// ErrIncompleteUpload is returned when the provider reports completion
	// without a file identifier.
	ErrIncompleteUpload = errors.New("upload completed without a file id")
)

// ProviderError wraps a failure reported by the Drive API.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("drive %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Cancelled reports whether ctx was cancelled by its owner, as opposed to
// expiring or never being cancelled.
func Cancelled(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.Canceled)
}

// isNotFound reports whether err is a Drive 404.
func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound
	}

	return false
}
