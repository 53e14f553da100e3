package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/ethpandaops/avataroor/pkg/bundle"
	"github.com/ethpandaops/avataroor/pkg/config"
	"github.com/ethpandaops/avataroor/pkg/drive"
	"github.com/ethpandaops/avataroor/pkg/drive/drivetest"
)

const testChunkSize = 8

type recordingReporter struct {
	mu       sync.Mutex
	stages   []State
	progress [][2]int64
}

func (r *recordingReporter) Stage(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stages = append(r.stages, s)
}

func (r *recordingReporter) Progress(sent, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.progress = append(r.progress, [2]int64{sent, total})
}

type recordingResults struct {
	avatar string
	fileID string
	calls  int
}

func (r *recordingResults) Succeeded(avatarName, fileID string) {
	r.avatar = avatarName
	r.fileID = fileID
	r.calls++
}

type harness struct {
	fake      *drivetest.Fake
	dir       string
	factories int
	reporter  *recordingReporter
	results   *recordingResults
	orch      *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	h := &harness{
		fake:     drivetest.NewFake(),
		dir:      t.TempDir(),
		reporter: &recordingReporter{},
		results:  &recordingResults{},
	}

	factory := func(_ context.Context, _ string) (drive.Client, error) {
		h.factories++

		return h.fake, nil
	}

	h.orch = NewOrchestrator(
		log,
		&config.BundleConfig{Directory: h.dir, Extension: ".BEE"},
		factory,
		WithReporter(h.reporter),
		WithResultHandler(h.results),
		WithChunkSize(testChunkSize),
	)

	return h
}

func (h *harness) writeBundle(t *testing.T, name string, data []byte) {
	t.Helper()

	require.NoError(t, os.WriteFile(filepath.Join(h.dir, name), data, 0o600))
}

// run executes a session directly so the test can inspect its resources.
func (h *harness) run(ctx context.Context, req Request) (Outcome, *session) {
	s := &session{
		id:       "test",
		log:      h.orch.log,
		reporter: h.orch.reporter,
	}

	return h.orch.execute(ctx, s, req), s
}

func TestUpload_CreatesNewFile(t *testing.T) {
	h := newHarness(t)
	data := bytes.Repeat([]byte("a"), 3*testChunkSize+1)
	h.writeBundle(t, "x7f3k.BEE", data)

	out := h.orch.Upload(context.Background(), Request{Token: "tok", AvatarName: "MyAvatar"})
	require.NoError(t, out.Err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.NotEmpty(t, out.FileID)
	assert.False(t, out.Replaced)
	assert.Equal(t, int64(len(data)), out.BytesSent)

	file := h.fake.File(out.FileID)
	require.NotNil(t, file)
	assert.Equal(t, "MyAvatar.BEE", file.Name)
	assert.Equal(t, data, h.fake.Content(out.FileID))

	avatars := h.fake.FilesNamed(drive.AvatarsFolderName)
	require.Len(t, avatars, 1)
	assert.Equal(t, []string{avatars[0].Id}, file.Parents)

	assert.Equal(t, 1, h.results.calls)
	assert.Equal(t, "MyAvatar", h.results.avatar)
	assert.Equal(t, out.FileID, h.results.fileID)
	assert.True(t, h.fake.Closed())

	assert.Equal(t, []State{
		StateValidatingInput,
		StateLocatingLocalFile,
		StateResolvingDirectories,
		StateLocatingRemoteFile,
		StateBuildingRequest,
		StateUploading,
		StateSucceeded,
	}, h.reporter.stages)

	require.NotEmpty(t, h.reporter.progress)
	assert.Equal(t,
		[2]int64{int64(len(data)), int64(len(data))},
		h.reporter.progress[len(h.reporter.progress)-1],
	)
}

func TestUpload_ReplacesExistingFile(t *testing.T) {
	h := newHarness(t)

	root := h.fake.AddFolder(drive.RootFolderName)
	h.fake.AddFolder(drive.ScenesFolderName, root)
	avatars := h.fake.AddFolder(drive.AvatarsFolderName, root)
	h.fake.AddFolder(drive.PropsFolderName, root)
	existing := h.fake.AddFile("MyAvatar.BEE", []byte("old bundle"), avatars)

	data := []byte("new bundle content")
	h.writeBundle(t, "bundle.BEE", data)

	out := h.orch.Upload(context.Background(), Request{Token: "tok", AvatarName: "MyAvatar"})
	require.NoError(t, out.Err)

	assert.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, existing, out.FileID)
	assert.True(t, out.Replaced)
	assert.Equal(t, data, h.fake.Content(existing))
	assert.Len(t, h.fake.FilesNamed("MyAvatar.BEE"), 1)
	assert.Zero(t, h.fake.Calls(drivetest.MethodCreateFolder))
	assert.Zero(t, h.fake.Calls(drivetest.MethodCreateFile))
	assert.Equal(t, 1, h.fake.Calls(drivetest.MethodUpdateFile))
}

func TestUpload_Preconditions(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		bundle  []byte
		wantErr error
	}{
		{
			name:    "missing credential",
			req:     Request{AvatarName: "MyAvatar"},
			bundle:  []byte("data"),
			wantErr: ErrMissingCredential,
		},
		{
			name:    "blank credential",
			req:     Request{Token: "  ", AvatarName: "MyAvatar"},
			bundle:  []byte("data"),
			wantErr: ErrMissingCredential,
		},
		{
			name:    "missing avatar name",
			req:     Request{Token: "tok"},
			bundle:  []byte("data"),
			wantErr: ErrMissingAvatarName,
		},
		{
			name:    "missing bundle",
			req:     Request{Token: "tok", AvatarName: "MyAvatar"},
			wantErr: bundle.ErrNotFound,
		},
		{
			name:    "empty bundle",
			req:     Request{Token: "tok", AvatarName: "MyAvatar"},
			bundle:  []byte{},
			wantErr: drive.ErrInvalidContentLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.bundle != nil {
				h.writeBundle(t, "avatar.BEE", tt.bundle)
			}

			out, s := h.run(context.Background(), tt.req)

			assert.Equal(t, StateFailed, out.State)
			assert.Empty(t, out.FileID)
			require.ErrorIs(t, out.Err, tt.wantErr)

			var perr *PreconditionError
			assert.ErrorAs(t, out.Err, &perr)

			assert.Zero(t, h.factories)
			assert.Zero(t, h.fake.TotalCalls())
			assert.Zero(t, h.results.calls)
			assert.NotContains(t, h.reporter.stages, StateResolvingDirectories)

			if s.bundle != nil {
				assert.True(t, s.bundle.Closed())
			}
		})
	}
}

func TestUpload_CancelMidUpload(t *testing.T) {
	h := newHarness(t)
	data := bytes.Repeat([]byte("z"), 10*testChunkSize)
	h.writeBundle(t, "avatar.BEE", data)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.fake.OnChunk = func(sent int64) {
		if sent >= 3*testChunkSize {
			cancel()
		}
	}

	out, s := h.run(ctx, Request{Token: "tok", AvatarName: "MyAvatar"})

	assert.Equal(t, StateCancelled, out.State)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.FileID)
	assert.Empty(t, h.fake.FilesNamed("MyAvatar.BEE"))

	require.NotNil(t, s.bundle)
	assert.True(t, s.bundle.Closed())
	require.NotNil(t, s.sub)
	assert.True(t, s.sub.Released())
	assert.True(t, h.fake.Closed())
	assert.Equal(t, StateCancelled, s.state)
}

func TestUpload_CancelledBeforeProviderCalls(t *testing.T) {
	h := newHarness(t)
	h.writeBundle(t, "avatar.BEE", []byte("data"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, s := h.run(ctx, Request{Token: "tok", AvatarName: "MyAvatar"})

	assert.Equal(t, StateCancelled, out.State)
	assert.NoError(t, out.Err)
	assert.Zero(t, h.factories)
	assert.True(t, s.bundle.Closed())
}

func TestUpload_ProviderFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *drivetest.Fake)
	}{
		{
			name: "directory listing",
			setup: func(f *drivetest.Fake) {
				f.SetError(drivetest.MethodListFiles, &googleapi.Error{Code: http.StatusUnauthorized})
			},
		},
		{
			name: "folder creation",
			setup: func(f *drivetest.Fake) {
				f.SetError(drivetest.MethodCreateFolder, &googleapi.Error{Code: http.StatusForbidden})
			},
		},
		{
			name: "upload",
			setup: func(f *drivetest.Fake) {
				f.FailUploadAfter = testChunkSize
			},
		},
		{
			name: "embedded failure",
			setup: func(f *drivetest.Fake) {
				f.OmitUploadID = true
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.writeBundle(t, "avatar.BEE", bytes.Repeat([]byte("p"), 4*testChunkSize))
			tt.setup(h.fake)

			out, s := h.run(context.Background(), Request{Token: "tok", AvatarName: "MyAvatar"})

			assert.Equal(t, StateFailed, out.State)
			assert.Empty(t, out.FileID)

			var perr *drive.ProviderError
			require.ErrorAs(t, out.Err, &perr)

			assert.True(t, s.bundle.Closed())
			assert.True(t, h.fake.Closed())
			assert.Zero(t, h.results.calls)
		})
	}
}

func TestUpload_ClientFactoryFailure(t *testing.T) {
	h := newHarness(t)
	h.writeBundle(t, "avatar.BEE", []byte("data"))

	h.orch.newClient = func(context.Context, string) (drive.Client, error) {
		return nil, errors.New("no transport")
	}

	out, s := h.run(context.Background(), Request{Token: "tok", AvatarName: "MyAvatar"})

	assert.Equal(t, StateFailed, out.State)
	assert.ErrorContains(t, out.Err, "no transport")
	assert.True(t, s.bundle.Closed())
}

func TestPreflight(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := newHarness(t)

		require.NoError(t, h.orch.Preflight(context.Background(), "tok"))
		assert.Equal(t, 1, h.fake.Calls(drivetest.MethodAbout))
		assert.True(t, h.fake.Closed())
	})

	t.Run("missing token", func(t *testing.T) {
		h := newHarness(t)

		err := h.orch.Preflight(context.Background(), "")
		require.ErrorIs(t, err, ErrMissingCredential)
		assert.Zero(t, h.factories)
	})

	t.Run("rejected token", func(t *testing.T) {
		h := newHarness(t)
		h.fake.SetError(drivetest.MethodAbout, &googleapi.Error{Code: http.StatusUnauthorized})

		err := h.orch.Preflight(context.Background(), "tok")

		var perr *drive.ProviderError
		require.ErrorAs(t, err, &perr)
	})
}

// committingClient cancels the session right after the provider commits the
// upload, and records the session's resource state when it is closed.
type committingClient struct {
	*drivetest.Fake
	cancel  context.CancelFunc
	onClose func()
}

func (c *committingClient) CreateFile(
	ctx context.Context, file *gdrive.File, media io.Reader, opts drive.MediaOptions,
) (*gdrive.File, error) {
	created, err := c.Fake.CreateFile(ctx, file, media, opts)
	if c.cancel != nil {
		c.cancel()
	}

	return created, err
}

func (c *committingClient) Close() error {
	if c.onClose != nil {
		c.onClose()
	}

	return c.Fake.Close()
}

func TestUpload_CancelAfterCommitSucceeds(t *testing.T) {
	h := newHarness(t)
	data := []byte("committed bundle")
	h.writeBundle(t, "avatar.BEE", data)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.orch.newClient = func(context.Context, string) (drive.Client, error) {
		return &committingClient{Fake: h.fake, cancel: cancel}, nil
	}

	out := h.orch.Upload(ctx, Request{Token: "tok", AvatarName: "MyAvatar"})
	require.NoError(t, out.Err)
	require.Error(t, ctx.Err())

	assert.Equal(t, StateSucceeded, out.State)
	require.NotEmpty(t, out.FileID)
	assert.Equal(t, data, h.fake.Content(out.FileID))
	assert.Equal(t, 1, h.results.calls)
	assert.Equal(t, out.FileID, h.results.fileID)
}

func TestSession_ReleaseOrder(t *testing.T) {
	h := newHarness(t)
	h.writeBundle(t, "avatar.BEE", []byte("data"))

	b, err := bundle.Open(filepath.Join(h.dir, "avatar.BEE"))
	require.NoError(t, err)

	var events []string

	s := &session{
		id:       "test",
		log:      h.orch.log,
		reporter: nopReporter{},
		bundle:   b,
		sub:      h.orch.driver.Subscribe(nil),
	}
	s.client = &committingClient{
		Fake: h.fake,
		onClose: func() {
			events = append(events, fmt.Sprintf(
				"client closed: subscription released=%t, bundle closed=%t",
				s.sub.Released(), s.bundle.Closed(),
			))
		},
	}

	s.release()

	assert.Equal(t, []string{
		"client closed: subscription released=true, bundle closed=false",
	}, events)
	assert.True(t, s.sub.Released())
	assert.True(t, b.Closed())
	assert.True(t, h.fake.Closed())
}

func TestUpload_ReleaseOrderOnEveryExit(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *drivetest.Fake)
		want  State
	}{
		{name: "success", setup: func(*drivetest.Fake) {}, want: StateSucceeded},
		{
			name: "failure",
			setup: func(f *drivetest.Fake) {
				f.FailUploadAfter = testChunkSize
			},
			want: StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.writeBundle(t, "avatar.BEE", bytes.Repeat([]byte("r"), 3*testChunkSize))
			tt.setup(h.fake)

			s := &session{
				id:       "test",
				log:      h.orch.log,
				reporter: h.orch.reporter,
			}

			var events []string

			h.orch.newClient = func(context.Context, string) (drive.Client, error) {
				return &committingClient{
					Fake: h.fake,
					onClose: func() {
						events = append(events, fmt.Sprintf(
							"subscription released=%t, bundle closed=%t",
							s.sub != nil && s.sub.Released(), s.bundle.Closed(),
						))
					},
				}, nil
			}

			out := h.orch.execute(context.Background(), s, Request{Token: "tok", AvatarName: "MyAvatar"})

			assert.Equal(t, tt.want, out.State)
			assert.Equal(t, []string{"subscription released=true, bundle closed=false"}, events)
			assert.True(t, s.bundle.Closed())
		})
	}
}
