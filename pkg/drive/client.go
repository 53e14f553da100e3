// Package drive reconciles the avatar folder layout on Google Drive and
// drives resumable bundle uploads against it.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/ethpandaops/avataroor/pkg/config"
	"golang.org/x/oauth2"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	// FolderMimeType marks Drive files that are folders.
	FolderMimeType = "application/vnd.google-apps.folder"

	// BundleContentType is the content type bundles are uploaded with.
	BundleContentType = "application/octet-stream"

	// downloadURLPrefix builds direct download links for public files.
	downloadURLPrefix = "https://drive.google.com/uc?export=download&id="
)

var (
	listFields  googleapi.Field = "nextPageToken, files(id, name, mimeType, parents, trashed)"
	fileFields  googleapi.Field = "id, name, mimeType, parents, trashed"
	aboutFields googleapi.Field = "user(displayName, emailAddress, permissionId)"
)

// Client is the subset of the Drive API used by this package. It keeps the
// surface small so higher layers can be exercised against an in-memory
// implementation.
type Client interface {
	// ListFiles returns one page of files matching query.
	ListFiles(ctx context.Context, query, pageToken string) (*drive.FileList, error)

	// GetFile returns metadata for a single file.
	GetFile(ctx context.Context, fileID string) (*drive.File, error)

	// CreateFolder creates a folder. An empty parentID creates it at the
	// root of the drive.
	CreateFolder(ctx context.Context, name, parentID string) (*drive.File, error)

	// CreatePermission grants permission on fileID.
	CreatePermission(ctx context.Context, fileID string, permission *drive.Permission) error

	// CreateFile uploads media as a new file described by file.
	CreateFile(
		ctx context.Context, file *drive.File, media io.Reader, opts MediaOptions,
	) (*drive.File, error)

	// UpdateFile replaces the content of fileID, applying any non-empty
	// fields of file as a metadata patch.
	UpdateFile(
		ctx context.Context, fileID string, file *drive.File, media io.Reader, opts MediaOptions,
	) (*drive.File, error)

	// About returns information about the authenticated user.
	About(ctx context.Context) (*drive.About, error)

	// Close releases transport resources held by the client.
	Close() error
}

// MediaOptions configures a media upload call.
type MediaOptions struct {
	ContentType string
	// ChunkSize is the resumable upload chunk size; zero uses the library default.
	ChunkSize int
	// Fields limits the response to the given fields.
	Fields []googleapi.Field
	// Progress receives the number of bytes sent so far. total may be zero
	// when the library does not know the content length.
	Progress googleapi.ProgressUpdater
}

func (o MediaOptions) mediaOptions() []googleapi.MediaOption {
	opts := make([]googleapi.MediaOption, 0, 2)

	if o.ContentType != "" {
		opts = append(opts, googleapi.ContentType(o.ContentType))
	}

	if o.ChunkSize > 0 {
		opts = append(opts, googleapi.ChunkSize(o.ChunkSize))
	}

	return opts
}

// Compile-time interface check.
var _ Client = (*serviceClient)(nil)

// serviceClient implements Client on top of the generated Drive v3 service.
type serviceClient struct {
	svc        *drive.Service
	httpClient *http.Client
}

// NewClient returns a Client authenticated with a bearer access token.
func NewClient(ctx context.Context, cfg *config.DriveConfig, token string) (Client, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	})

	return newServiceClient(ctx, cfg, oauth2.NewClient(ctx, ts))
}

func newServiceClient(
	ctx context.Context, cfg *config.DriveConfig, httpClient *http.Client,
) (*serviceClient, error) {
	opts := []option.ClientOption{
		option.WithHTTPClient(httpClient),
	}

	if cfg.ApplicationName != "" {
		opts = append(opts, option.WithUserAgent(cfg.ApplicationName))
	}

	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating drive service: %w", err)
	}

	return &serviceClient{
		svc:        svc,
		httpClient: httpClient,
	}, nil
}

func (c *serviceClient) ListFiles(
	ctx context.Context, query, pageToken string,
) (*drive.FileList, error) {
	call := c.svc.Files.List().
		Q(query).
		Fields(listFields).
		Context(ctx)

	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	return call.Do()
}

func (c *serviceClient) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	return c.svc.Files.Get(fileID).
		Fields(fileFields).
		Context(ctx).
		Do()
}

func (c *serviceClient) CreateFolder(
	ctx context.Context, name, parentID string,
) (*drive.File, error) {
	folder := &drive.File{
		Name:     name,
		MimeType: FolderMimeType,
	}

	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	return c.svc.Files.Create(folder).
		Fields(fileFields).
		Context(ctx).
		Do()
}

func (c *serviceClient) CreatePermission(
	ctx context.Context, fileID string, permission *drive.Permission,
) error {
	_, err := c.svc.Permissions.Create(fileID, permission).
		Context(ctx).
		Do()

	return err
}

func (c *serviceClient) CreateFile(
	ctx context.Context, file *drive.File, media io.Reader, opts MediaOptions,
) (*drive.File, error) {
	call := c.svc.Files.Create(file).
		Media(media, opts.mediaOptions()...).
		Context(ctx)

	if opts.Progress != nil {
		call = call.ProgressUpdater(opts.Progress)
	}

	if len(opts.Fields) > 0 {
		call = call.Fields(opts.Fields...)
	}

	return call.Do()
}

func (c *serviceClient) UpdateFile(
	ctx context.Context, fileID string, file *drive.File, media io.Reader, opts MediaOptions,
) (*drive.File, error) {
	call := c.svc.Files.Update(fileID, file).
		Media(media, opts.mediaOptions()...).
		Context(ctx)

	if opts.Progress != nil {
		call = call.ProgressUpdater(opts.Progress)
	}

	if len(opts.Fields) > 0 {
		call = call.Fields(opts.Fields...)
	}

	return call.Do()
}

func (c *serviceClient) About(ctx context.Context) (*drive.About, error) {
	return c.svc.About.Get().
		Fields(aboutFields).
		Context(ctx).
		Do()
}

func (c *serviceClient) Close() error {
	c.httpClient.CloseIdleConnections()

	return nil
}

// DownloadURL returns the direct download link for a publicly readable file.
func DownloadURL(fileID string) string {
	return downloadURLPrefix + fileID
}
