package upload

import (
	"github.com/ethpandaops/avataroor/pkg/bundle"
	"github.com/ethpandaops/avataroor/pkg/drive"
	"github.com/sirupsen/logrus"
)

// session holds the resources of one upload attempt.
type session struct {
	id       string
	log      logrus.FieldLogger
	reporter Reporter
	state    State

	bundle *bundle.Bundle
	client drive.Client
	sub    *drive.Subscription
}

func (s *session) advance(to State) error {
	if err := ValidateTransition(s.state, to); err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"from": s.state.String(),
		"to":   to.String(),
	}).Debug("Upload state changed")

	s.state = to
	s.reporter.Stage(to)

	return nil
}

// finish moves the session to the terminal state of out.
func (s *session) finish(out *Outcome) {
	if err := s.advance(out.State); err != nil {
		s.log.WithError(err).Error("Unexpected upload state")

		*out = failed(err)
		s.state = StateFailed
	}
}

// release stops progress delivery, then closes the client, then the bundle
// stream.
func (s *session) release() {
	if s.sub != nil {
		s.sub.Release()
	}

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close drive client")
		}
	}

	if s.bundle != nil {
		if err := s.bundle.Close(); err != nil {
			s.log.WithError(err).Warn("Failed to close bundle")
		}
	}
}
