package upload

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethpandaops/avataroor/pkg/bundle"
	"github.com/ethpandaops/avataroor/pkg/config"
	"github.com/ethpandaops/avataroor/pkg/drive"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Compile-time interface check.
var _ Uploader = (*Orchestrator)(nil)

// Orchestrator runs upload sessions: it finds the local bundle, resolves the
// remote folders, decides between create and replace, and drives the upload.
type Orchestrator struct {
	log       logrus.FieldLogger
	cfg       *config.BundleConfig
	newClient ClientFactory
	resolver  drive.DirectoryResolver
	locator   *drive.Locator
	driver    *drive.Driver
	reporter  Reporter
	results   ResultHandler
	chunkSize int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithDirectoryResolver replaces the default resolver.
func WithDirectoryResolver(r drive.DirectoryResolver) Option {
	return func(o *Orchestrator) {
		o.resolver = r
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) {
		o.reporter = r
	}
}

// WithResultHandler sets the handler notified on success.
func WithResultHandler(h ResultHandler) Option {
	return func(o *Orchestrator) {
		o.results = h
	}
}

// WithChunkSize sets the resumable upload chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(o *Orchestrator) {
		o.chunkSize = size
	}
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(
	log logrus.FieldLogger,
	cfg *config.BundleConfig,
	newClient ClientFactory,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		log:       log.WithField("component", "uploader"),
		cfg:       cfg,
		newClient: newClient,
		reporter:  nopReporter{},
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.resolver == nil {
		o.resolver = drive.NewResolver(log)
	}

	o.locator = drive.NewLocator(log)
	o.driver = drive.NewDriver(log, o.chunkSize)

	return o
}

// Preflight checks that token is accepted by Drive.
func (o *Orchestrator) Preflight(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return &PreconditionError{Reason: "credential", Err: ErrMissingCredential}
	}

	client, err := o.newClient(ctx, token)
	if err != nil {
		return fmt.Errorf("creating drive client: %w", err)
	}
	defer func() { _ = client.Close() }()

	about, err := client.About(ctx)
	if err != nil {
		return &drive.ProviderError{Op: "about", Err: err}
	}

	if about.User != nil {
		o.log.WithFields(logrus.Fields{
			"user":  about.User.DisplayName,
			"email": about.User.EmailAddress,
		}).Info("Drive credential verified")
	}

	return nil
}

// Upload runs a single upload session. Resources held by the session are
// released before Upload returns, whatever the outcome.
func (o *Orchestrator) Upload(ctx context.Context, req Request) Outcome {
	s := &session{
		id:       uuid.NewString(),
		reporter: o.reporter,
		state:    StateIdle,
	}
	s.log = o.log.WithFields(logrus.Fields{
		"session": s.id,
		"avatar":  req.AvatarName,
	})

	out := o.execute(ctx, s, req)

	switch out.State {
	case StateSucceeded:
		s.log.WithFields(logrus.Fields{
			"file_id":  out.FileID,
			"replaced": out.Replaced,
			"bytes":    out.BytesSent,
		}).Info("Upload succeeded")

		if o.results != nil {
			o.results.Succeeded(req.AvatarName, out.FileID)
		}
	case StateCancelled:
		s.log.Warn("Upload cancelled")
	default:
		s.log.WithError(out.Err).Error("Upload failed")
	}

	return out
}

func (o *Orchestrator) execute(ctx context.Context, s *session, req Request) (out Outcome) {
	defer s.release()
	defer func() { s.finish(&out) }()

	if err := s.advance(StateValidatingInput); err != nil {
		return failed(err)
	}

	if strings.TrimSpace(req.Token) == "" {
		return failed(&PreconditionError{Reason: "credential", Err: ErrMissingCredential})
	}

	if strings.TrimSpace(req.AvatarName) == "" {
		return failed(&PreconditionError{Reason: "avatar name", Err: ErrMissingAvatarName})
	}

	if err := s.advance(StateLocatingLocalFile); err != nil {
		return failed(err)
	}

	if err := o.openBundle(s); err != nil {
		return failed(err)
	}

	if drive.Cancelled(ctx) {
		return cancelled()
	}

	client, err := o.newClient(ctx, req.Token)
	if err != nil {
		return failed(fmt.Errorf("creating drive client: %w", err))
	}

	s.client = client

	if err := s.advance(StateResolvingDirectories); err != nil {
		return failed(err)
	}

	dirs, err := o.resolver.Resolve(ctx, client)
	if err != nil {
		return interrupted(ctx, err)
	}

	if drive.Cancelled(ctx) {
		return cancelled()
	}

	if err := s.advance(StateLocatingRemoteFile); err != nil {
		return failed(err)
	}

	existing, err := o.locator.FindExisting(ctx, client, dirs.Avatars, drive.FileName(req.AvatarName))
	if err != nil {
		return interrupted(ctx, err)
	}

	if drive.Cancelled(ctx) {
		return cancelled()
	}

	if err := s.advance(StateBuildingRequest); err != nil {
		return failed(err)
	}

	request := drive.BuildRequest(existing, dirs, req.AvatarName, s.bundle, s.bundle.Size)

	s.log.WithFields(logrus.Fields{
		"kind":    request.Kind.String(),
		"file_id": request.FileID,
	}).Debug("Built upload request")

	if err := s.advance(StateUploading); err != nil {
		return failed(err)
	}

	s.sub = o.driver.Subscribe(s.reporter.Progress)

	res, err := o.driver.Drive(ctx, client, request, s.sub)
	if err != nil {
		return interrupted(ctx, err)
	}

	if res.Cancelled {
		c := cancelled()
		c.BytesSent = res.BytesSent

		return c
	}

	return Outcome{
		State:     StateSucceeded,
		FileID:    res.FileID,
		Replaced:  existing != nil,
		BytesSent: res.BytesSent,
	}
}

// openBundle finds and opens the local bundle. The session owns the stream.
func (o *Orchestrator) openBundle(s *session) error {
	path, err := bundle.Find(o.cfg.Directory, o.cfg.Extension)
	if err != nil {
		return &PreconditionError{Reason: "bundle", Err: err}
	}

	b, err := bundle.Open(path)
	if err != nil {
		return &PreconditionError{Reason: "bundle", Err: err}
	}

	s.bundle = b

	if b.Size <= 0 {
		return &PreconditionError{
			Reason: "bundle",
			Err:    fmt.Errorf("%s: %w", path, drive.ErrInvalidContentLength),
		}
	}

	s.log.WithFields(logrus.Fields{
		"path": path,
		"size": b.Size,
	}).Debug("Found local bundle")

	return nil
}

func failed(err error) Outcome {
	return Outcome{State: StateFailed, Err: err}
}

func cancelled() Outcome {
	return Outcome{State: StateCancelled}
}

// interrupted maps a failed step to Cancelled when ctx was cancelled and to
// Failed otherwise. Steps that completed are never routed through here.
func interrupted(ctx context.Context, err error) Outcome {
	if err != nil && drive.Cancelled(ctx) {
		return cancelled()
	}

	return failed(err)
}
