package drive

import (
	"io"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// FileExtension is appended to the avatar name to form the remote file name.
const FileExtension = ".BEE"

// RequestKind distinguishes creating a new file from replacing an existing one.
type RequestKind int

const (
	// RequestCreate uploads a new file into the Avatars folder.
	RequestCreate RequestKind = iota
	// RequestReplace overwrites the content of an existing file.
	RequestReplace
)

func (k RequestKind) String() string {
	switch k {
	case RequestCreate:
		return "create"
	case RequestReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// UploadRequest is a prepared, not yet started, media upload.
type UploadRequest struct {
	Kind RequestKind
	// FileID is the file being replaced. Empty for create requests.
	FileID      string
	Metadata    *drive.File
	Fields      []googleapi.Field
	Content     io.Reader
	Size        int64
	ContentType string
}

// FileName returns the remote file name for an avatar.
func FileName(avatarName string) string {
	return avatarName + FileExtension
}

// BuildRequest decides between creating a new file and replacing the
// content of existing. A replace never changes name or parents.
func BuildRequest(
	existing *drive.File,
	dirs *DirectorySet,
	avatarName string,
	content io.Reader,
	size int64,
) *UploadRequest {
	if existing == nil {
		return &UploadRequest{
			Kind: RequestCreate,
			Metadata: &drive.File{
				Name:    FileName(avatarName),
				Parents: []string{dirs.Avatars},
			},
			Fields:      []googleapi.Field{"id"},
			Content:     content,
			Size:        size,
			ContentType: BundleContentType,
		}
	}

	return &UploadRequest{
		Kind:        RequestReplace,
		FileID:      existing.Id,
		Metadata:    &drive.File{},
		Fields:      []googleapi.Field{"id"},
		Content:     content,
		Size:        size,
		ContentType: BundleContentType,
	}
}
