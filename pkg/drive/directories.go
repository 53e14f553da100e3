package drive

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	drive "google.golang.org/api/drive/v3"
)

// Folder names of the remote layout. These must match existing remote trees
// exactly.
const (
	RootFolderName    = "BasisVr"
	ScenesFolderName  = "Scenes"
	AvatarsFolderName = "Avatars"
	PropsFolderName   = "Props"
)

// publicReadOnly is granted to category folders when they are created.
// Files placed in them inherit it.
var publicReadOnly = drive.Permission{
	Role: "reader",
	Type: "anyone",
}

// DirectorySet holds the ids of the remote folder tree:
//
//	BasisVr
//	BasisVr/Scenes
//	BasisVr/Avatars
//	BasisVr/Props
type DirectorySet struct {
	Root    string
	Scenes  string
	Avatars string
	Props   string
}

// Complete reports whether every folder id is known.
func (d *DirectorySet) Complete() bool {
	return d.Root != "" && d.Scenes != "" && d.Avatars != "" && d.Props != ""
}

// children returns the category folders in creation order.
func (d *DirectorySet) children() []struct {
	name string
	id   *string
} {
	return []struct {
		name string
		id   *string
	}{
		{name: ScenesFolderName, id: &d.Scenes},
		{name: AvatarsFolderName, id: &d.Avatars},
		{name: PropsFolderName, id: &d.Props},
	}
}

// assign records id under the folder called name. The first id seen for a
// name wins. It returns false for names outside the layout.
func (d *DirectorySet) assign(name, id string) bool {
	var slot *string

	switch name {
	case RootFolderName:
		slot = &d.Root
	case ScenesFolderName:
		slot = &d.Scenes
	case AvatarsFolderName:
		slot = &d.Avatars
	case PropsFolderName:
		slot = &d.Props
	default:
		return false
	}

	if *slot == "" {
		*slot = id
	}

	return true
}

// DirectoryResolver ensures the remote folder tree exists.
type DirectoryResolver interface {
	Resolve(ctx context.Context, client Client) (*DirectorySet, error)
}

// Compile-time interface check.
var _ DirectoryResolver = (*Resolver)(nil)

// Resolver finds the remote folder tree and creates whatever is missing.
// Running it again against the same drive finds the folders it created and
// issues no further writes.
type Resolver struct {
	log logrus.FieldLogger
}

// NewResolver creates a new Resolver.
func NewResolver(log logrus.FieldLogger) *Resolver {
	return &Resolver{
		log: log.WithField("component", "directory-resolver"),
	}
}

// Resolve returns the ids of the folder tree, creating missing folders.
// Category folders are made publicly readable only when created here;
// permissions of existing folders are left alone. Folders created before a
// failure or cancellation are kept and found on the next run.
func (r *Resolver) Resolve(ctx context.Context, client Client) (*DirectorySet, error) {
	dirs, err := r.existing(ctx, client)
	if err != nil {
		return nil, err
	}

	if dirs.Root == "" {
		root, err := r.createFolder(ctx, client, RootFolderName, "")
		if err != nil {
			return nil, err
		}

		dirs.Root = root
	}

	for _, child := range dirs.children() {
		if *child.id != "" {
			continue
		}

		id, err := r.createFolder(ctx, client, child.name, dirs.Root)
		if err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := client.CreatePermission(ctx, id, &publicReadOnly); err != nil {
			return nil, &ProviderError{
				Op:  fmt.Sprintf("grant public read on %s", child.name),
				Err: err,
			}
		}

		*child.id = id
	}

	r.log.WithFields(logrus.Fields{
		"root":    dirs.Root,
		"scenes":  dirs.Scenes,
		"avatars": dirs.Avatars,
		"props":   dirs.Props,
	}).Debug("Resolved drive directories")

	return dirs, nil
}

// existing scans all folders until every name of the layout has been seen.
func (r *Resolver) existing(ctx context.Context, client Client) (*DirectorySet, error) {
	dirs := &DirectorySet{}

	for f, err := range Files(ctx, client, folderQuery()) {
		if err != nil {
			return nil, err
		}

		if dirs.assign(f.Name, f.Id) && dirs.Complete() {
			break
		}
	}

	return dirs, nil
}

func (r *Resolver) createFolder(
	ctx context.Context, client Client, name, parentID string,
) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	folder, err := client.CreateFolder(ctx, name, parentID)
	if err != nil {
		return "", &ProviderError{Op: fmt.Sprintf("create folder %s", name), Err: err}
	}

	if folder == nil || folder.Id == "" {
		return "", &ProviderError{
			Op:  fmt.Sprintf("create folder %s", name),
			Err: fmt.Errorf("no folder id returned"),
		}
	}

	r.log.WithFields(logrus.Fields{
		"name":   name,
		"id":     folder.Id,
		"parent": parentID,
	}).Info("Created drive folder")

	return folder.Id, nil
}
