// Package progress renders upload progress as log lines.
package progress

import (
	"fmt"
	"time"

	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/avataroor/pkg/upload"
)

var stageMessages = map[upload.State]string{
	upload.StateLocatingLocalFile:    "Looking for local avatar bundle",
	upload.StateResolvingDirectories: "Setting up drive directories",
	upload.StateLocatingRemoteFile:   "Checking for avatar file on Drive",
	upload.StateUploading:            "Uploading avatar bundle",
}

// Compile-time interface check.
var _ upload.Reporter = (*Reporter)(nil)

// Reporter logs session stages and byte progress. Intermediate progress is
// limited to one line per interval; completion is always logged.
type Reporter struct {
	log     logrus.FieldLogger
	limiter *rate.Limiter
}

// NewReporter creates a new Reporter. A non-positive interval logs every
// update.
func NewReporter(log logrus.FieldLogger, interval time.Duration) *Reporter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Reporter{
		log:     log.WithField("component", "progress"),
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (r *Reporter) Stage(state upload.State) {
	msg, ok := stageMessages[state]
	if !ok {
		r.log.WithField("state", state.String()).Debug("Upload stage")

		return
	}

	r.log.Info(msg)
}

func (r *Reporter) Progress(sent, total int64) {
	if sent < total && !r.limiter.Allow() {
		return
	}

	r.log.WithField("percent", percent(sent, total)).Info(Message(sent, total))
}

// Message formats a progress line such as "Uploading 1.5MB/3MB to drive".
func Message(sent, total int64) string {
	return fmt.Sprintf("Uploading %s/%s to drive",
		units.HumanSize(float64(sent)), units.HumanSize(float64(total)))
}

func percent(sent, total int64) string {
	if total <= 0 {
		return "0%"
	}

	return fmt.Sprintf("%.0f%%", float64(sent)*100/float64(total))
}
