package drive

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	drive "google.golang.org/api/drive/v3"
)

// ProgressFunc receives upload progress. total is the full content length.
type ProgressFunc func(sent, total int64)

// Subscription delivers progress to a single observer until released.
// Values are monotonically non-decreasing; stale or regressing updates are
// dropped.
type Subscription struct {
	mu       sync.Mutex
	fn       ProgressFunc
	last     int64
	released bool
}

func (s *Subscription) publish(sent, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || sent < s.last {
		return
	}

	s.last = sent

	if s.fn != nil {
		s.fn(sent, total)
	}
}

// Release stops delivery. It is safe to call more than once.
func (s *Subscription) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.released = true
}

// Released reports whether Release has been called.
func (s *Subscription) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.released
}

// Sent returns the last delivered byte count.
func (s *Subscription) Sent() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// Result describes how an upload ended.
type Result struct {
	FileID    string
	BytesSent int64
	Cancelled bool
}

// Driver executes upload requests as chunked resumable uploads.
type Driver struct {
	log       logrus.FieldLogger
	chunkSize int
}

// NewDriver creates a new Driver. A chunkSize of zero uses the library
// default.
func NewDriver(log logrus.FieldLogger, chunkSize int) *Driver {
	return &Driver{
		log:       log.WithField("component", "upload-driver"),
		chunkSize: chunkSize,
	}
}

// Subscribe registers fn to receive progress for one upload.
func (d *Driver) Subscribe(fn ProgressFunc) *Subscription {
	return &Subscription{fn: fn}
}

// Drive runs req to completion, failure or cancellation. A call interrupted
// by cancelling ctx is reported through Result.Cancelled with a nil error and
// the partially uploaded content is abandoned. Once the provider has returned
// a file id the upload counts as committed and is reported as a success, even
// if ctx was cancelled after that point. sub may be nil.
func (d *Driver) Drive(
	ctx context.Context, client Client, req *UploadRequest, sub *Subscription,
) (Result, error) {
	if req.Size <= 0 {
		return Result{}, ErrInvalidContentLength
	}

	if sub == nil {
		sub = d.Subscribe(nil)
	}

	if Cancelled(ctx) {
		return Result{Cancelled: true}, nil
	}

	opts := MediaOptions{
		ContentType: req.ContentType,
		ChunkSize:   d.chunkSize,
		Fields:      req.Fields,
		Progress: func(current, _ int64) {
			sub.publish(current, req.Size)
		},
	}

	log := d.log.WithFields(logrus.Fields{
		"kind": req.Kind.String(),
		"size": req.Size,
	})

	log.Debug("Starting upload")

	var (
		file *drive.File
		err  error
	)

	switch req.Kind {
	case RequestReplace:
		file, err = client.UpdateFile(ctx, req.FileID, req.Metadata, req.Content, opts)
	default:
		file, err = client.CreateFile(ctx, req.Metadata, req.Content, opts)
	}

	// A committed file is a success even if ctx was cancelled meanwhile.
	if err == nil && file != nil && file.Id != "" {
		sub.publish(req.Size, req.Size)

		log.WithField("id", file.Id).Debug("Upload complete")

		return Result{FileID: file.Id, BytesSent: req.Size}, nil
	}

	if err != nil {
		if Cancelled(ctx) {
			log.WithField("sent", sub.Sent()).Debug("Upload cancelled")

			return Result{Cancelled: true, BytesSent: sub.Sent()}, nil
		}

		return Result{BytesSent: sub.Sent()}, &ProviderError{
			Op:  fmt.Sprintf("%s file", req.Kind),
			Err: err,
		}
	}

	return Result{BytesSent: sub.Sent()}, &ProviderError{
		Op:  fmt.Sprintf("%s file", req.Kind),
		Err: ErrIncompleteUpload,
	}
}
