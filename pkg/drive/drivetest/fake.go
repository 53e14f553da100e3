// Package drivetest provides an in-memory Drive client for tests.
package drivetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"sync"

	avdrive "github.com/ethpandaops/avataroor/pkg/drive"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Method names used for call counting and error injection.
const (
	MethodListFiles        = "ListFiles"
	MethodGetFile          = "GetFile"
	MethodCreateFolder     = "CreateFolder"
	MethodCreatePermission = "CreatePermission"
	MethodCreateFile       = "CreateFile"
	MethodUpdateFile       = "UpdateFile"
	MethodAbout            = "About"
)

const defaultChunkSize = 256 * 1024

// Compile-time interface check.
var _ avdrive.Client = (*Fake)(nil)

// Fake is an in-memory avdrive.Client. Files are listed in insertion order.
// Configure the exported fields before handing the fake to code under test.
type Fake struct {
	// PageSize limits list results per page. Zero returns everything in
	// one page.
	PageSize int
	// User is returned by About.
	User *drive.User
	// FailUploadAfter makes media uploads fail with a 503 once at least
	// this many bytes were read. Zero disables it.
	FailUploadAfter int64
	// OmitUploadID makes media uploads succeed without returning a file id.
	OmitUploadID bool
	// OnChunk is called after each media chunk is read with the running
	// byte count.
	OnChunk func(sent int64)

	mu          sync.Mutex
	files       []*drive.File
	content     map[string][]byte
	permissions map[string][]*drive.Permission
	errs        map[string]error
	calls       map[string]int
	nextID      int
	closed      bool
}

// NewFake returns an empty drive.
func NewFake() *Fake {
	return &Fake{
		User: &drive.User{
			DisplayName:  "Fake User",
			EmailAddress: "fake@example.com",
			PermissionId: "fake-permission-id",
		},
		content:     make(map[string][]byte),
		permissions: make(map[string][]*drive.Permission),
		errs:        make(map[string]error),
		calls:       make(map[string]int),
	}
}

// SetError makes every call of method fail with err. A nil err clears it.
func (f *Fake) SetError(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err == nil {
		delete(f.errs, method)

		return
	}

	f.errs[method] = err
}

// Calls returns how many times method was called.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

// TotalCalls returns the number of calls across all methods.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total int
	for _, n := range f.calls {
		total += n
	}

	return total
}

// ResetCalls zeroes all call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()

	clear(f.calls)
}

// AddFolder adds a folder and returns its id.
func (f *Fake) AddFolder(name string, parents ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.add(name, avdrive.FolderMimeType, parents, nil).Id
}

// AddFile adds a file with content and returns its id.
func (f *Fake) AddFile(name string, content []byte, parents ...string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.add(name, avdrive.BundleContentType, parents, content).Id
}

// Trash marks id as trashed.
func (f *Fake) Trash(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if file := f.find(id); file != nil {
		file.Trashed = true
	}
}

// File returns a copy of the metadata of id, or nil.
func (f *Fake) File(id string) *drive.File {
	f.mu.Lock()
	defer f.mu.Unlock()

	file := f.find(id)
	if file == nil {
		return nil
	}

	return clone(file)
}

// FilesNamed returns copies of every file called name, trashed included.
func (f *Fake) FilesNamed(name string) []*drive.File {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*drive.File

	for _, file := range f.files {
		if file.Name == name {
			out = append(out, clone(file))
		}
	}

	return out
}

// Content returns the stored content of id.
func (f *Fake) Content(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.content[id])
}

// Permissions returns the permissions granted on id.
func (f *Fake) Permissions(id string) []*drive.Permission {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.permissions[id])
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *Fake) ListFiles(
	ctx context.Context, query, pageToken string,
) (*drive.FileList, error) {
	if err := f.enter(ctx, MethodListFiles); err != nil {
		return nil, err
	}

	clauses, err := parseQuery(query)
	if err != nil {
		return nil, &googleapi.Error{Code: http.StatusBadRequest, Message: err.Error()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var matched []*drive.File

	for _, file := range f.files {
		if matches(file, clauses) {
			matched = append(matched, clone(file))
		}
	}

	start := 0
	if pageToken != "" {
		start, err = strconv.Atoi(pageToken)
		if err != nil || start < 0 || start > len(matched) {
			return nil, &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid page token"}
		}
	}

	end := len(matched)
	if f.PageSize > 0 && start+f.PageSize < end {
		end = start + f.PageSize
	}

	list := &drive.FileList{Files: matched[start:end]}
	if end < len(matched) {
		list.NextPageToken = strconv.Itoa(end)
	}

	return list, nil
}

func (f *Fake) GetFile(ctx context.Context, fileID string) (*drive.File, error) {
	if err := f.enter(ctx, MethodGetFile); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file := f.find(fileID)
	if file == nil {
		return nil, notFound(fileID)
	}

	return clone(file), nil
}

func (f *Fake) CreateFolder(
	ctx context.Context, name, parentID string,
) (*drive.File, error) {
	if err := f.enter(ctx, MethodCreateFolder); err != nil {
		return nil, err
	}

	var parents []string
	if parentID != "" {
		parents = []string{parentID}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return clone(f.add(name, avdrive.FolderMimeType, parents, nil)), nil
}

func (f *Fake) CreatePermission(
	ctx context.Context, fileID string, permission *drive.Permission,
) error {
	if err := f.enter(ctx, MethodCreatePermission); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.find(fileID) == nil {
		return notFound(fileID)
	}

	p := *permission
	f.permissions[fileID] = append(f.permissions[fileID], &p)

	return nil
}

func (f *Fake) CreateFile(
	ctx context.Context, file *drive.File, media io.Reader, opts avdrive.MediaOptions,
) (*drive.File, error) {
	if err := f.enter(ctx, MethodCreateFile); err != nil {
		return nil, err
	}

	data, err := f.receive(ctx, media, opts)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = opts.ContentType
	}

	created := f.add(file.Name, mimeType, file.Parents, data)

	if f.OmitUploadID {
		return &drive.File{}, nil
	}

	return &drive.File{Id: created.Id}, nil
}

func (f *Fake) UpdateFile(
	ctx context.Context, fileID string, file *drive.File, media io.Reader, opts avdrive.MediaOptions,
) (*drive.File, error) {
	if err := f.enter(ctx, MethodUpdateFile); err != nil {
		return nil, err
	}

	f.mu.Lock()
	exists := f.find(fileID) != nil
	f.mu.Unlock()

	if !exists {
		return nil, notFound(fileID)
	}

	data, err := f.receive(ctx, media, opts)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing := f.find(fileID)
	if existing == nil {
		return nil, notFound(fileID)
	}

	if file != nil && file.Name != "" {
		existing.Name = file.Name
	}

	f.content[fileID] = data

	if f.OmitUploadID {
		return &drive.File{}, nil
	}

	return &drive.File{Id: fileID}, nil
}

func (f *Fake) About(ctx context.Context) (*drive.About, error) {
	if err := f.enter(ctx, MethodAbout); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var user *drive.User
	if f.User != nil {
		u := *f.User
		user = &u
	}

	return &drive.About{User: user}, nil
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true

	return nil
}

// enter records a call and returns any injected or context error.
func (f *Fake) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[method]++

	if err := ctx.Err(); err != nil {
		return err
	}

	return f.errs[method]
}

// receive reads media in chunks the way a resumable upload does, reporting
// progress with an unknown total and honouring cancellation between chunks.
func (f *Fake) receive(
	ctx context.Context, media io.Reader, opts avdrive.MediaOptions,
) ([]byte, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var (
		data []byte
		sent int64
		buf  = make([]byte, chunkSize)
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("upload interrupted: %w", err)
		}

		n, err := io.ReadFull(media, buf)
		if n > 0 {
			data = append(data, buf[:n]...)
			sent += int64(n)

			if opts.Progress != nil {
				opts.Progress(sent, 0)
			}

			if f.OnChunk != nil {
				f.OnChunk(sent)
			}

			if f.FailUploadAfter > 0 && sent >= f.FailUploadAfter {
				return nil, &googleapi.Error{
					Code:    http.StatusServiceUnavailable,
					Message: "backend error",
				}
			}
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("reading media: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("upload interrupted: %w", err)
	}

	return data, nil
}

// add stores a new file. The caller must hold f.mu.
func (f *Fake) add(name, mimeType string, parents []string, content []byte) *drive.File {
	f.nextID++

	file := &drive.File{
		Id:       fmt.Sprintf("fake-%d", f.nextID),
		Name:     name,
		MimeType: mimeType,
		Parents:  slices.Clone(parents),
	}

	f.files = append(f.files, file)

	if content != nil {
		f.content[file.Id] = slices.Clone(content)
	}

	return file
}

// find returns the stored file. The caller must hold f.mu.
func (f *Fake) find(id string) *drive.File {
	for _, file := range f.files {
		if file.Id == id {
			return file
		}
	}

	return nil
}

func clone(file *drive.File) *drive.File {
	c := *file
	c.Parents = slices.Clone(file.Parents)

	return &c
}

func notFound(id string) error {
	return &googleapi.Error{
		Code:    http.StatusNotFound,
		Message: fmt.Sprintf("File not found: %s.", id),
	}
}
