package upload

import (
	"context"

	"github.com/ethpandaops/avataroor/pkg/drive"
)

// Uploader publishes a local avatar bundle to Google Drive.
type Uploader interface {
	// Preflight verifies that token grants access to Drive. It makes a
	// single read-only call.
	Preflight(ctx context.Context, token string) error

	// Upload runs one upload session to a terminal state. Failures are
	// reported through the returned Outcome rather than an error.
	Upload(ctx context.Context, req Request) Outcome
}

// Request names the avatar to publish and the credential to publish it with.
type Request struct {
	Token      string
	AvatarName string
}

// Outcome is the terminal result of an upload session.
type Outcome struct {
	State State
	// FileID is set only when State is StateSucceeded.
	FileID string
	// Replaced is true when an existing remote file was overwritten.
	Replaced  bool
	BytesSent int64
	// Err is set only when State is StateFailed.
	Err error
}

// Reporter observes the progress of an upload session.
type Reporter interface {
	Stage(state State)
	Progress(sent, total int64)
}

// ResultHandler is notified of successful uploads.
type ResultHandler interface {
	Succeeded(avatarName, fileID string)
}

// ClientFactory builds an authenticated Drive client for one session.
type ClientFactory func(ctx context.Context, token string) (drive.Client, error)

type nopReporter struct{}

func (nopReporter) Stage(State)           {}
func (nopReporter) Progress(int64, int64) {}
