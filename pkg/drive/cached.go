package drive

import (
	"context"
	"errors"
	"slices"

	"github.com/ethpandaops/avataroor/pkg/dircache"
	"github.com/sirupsen/logrus"
)

var errStaleEntry = errors.New("cached directory is stale")

// Compile-time interface check.
var _ DirectoryResolver = (*CachedResolver)(nil)

// CachedResolver serves folder ids from a local cache when they still point
// at live folders in the expected layout, and otherwise falls back to a full
// resolve. Cache failures never fail the resolve.
type CachedResolver struct {
	log   logrus.FieldLogger
	store dircache.Store
	inner DirectoryResolver
}

// NewCachedResolver wraps inner with a cache backed by store.
func NewCachedResolver(
	log logrus.FieldLogger, store dircache.Store, inner DirectoryResolver,
) *CachedResolver {
	return &CachedResolver{
		log:   log.WithField("component", "cached-directory-resolver"),
		store: store,
		inner: inner,
	}
}

func (r *CachedResolver) Resolve(ctx context.Context, client Client) (*DirectorySet, error) {
	account, err := accountKey(ctx, client)
	if err != nil {
		r.log.WithError(err).Warn("Unable to identify drive account, skipping cache")

		return r.inner.Resolve(ctx, client)
	}

	log := r.log.WithField("account", account)

	if dirs := r.cached(ctx, client, log, account); dirs != nil {
		log.Debug("Using cached drive directories")

		return dirs, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirs, err := r.inner.Resolve(ctx, client)
	if err != nil {
		return nil, err
	}

	if err := r.store.Put(ctx, &dircache.Entry{
		Account:   account,
		RootID:    dirs.Root,
		ScenesID:  dirs.Scenes,
		AvatarsID: dirs.Avatars,
		PropsID:   dirs.Props,
	}); err != nil {
		log.WithError(err).Warn("Failed to store drive directories in cache")
	}

	return dirs, nil
}

// cached returns the cached set when every id is still valid.
func (r *CachedResolver) cached(
	ctx context.Context, client Client, log logrus.FieldLogger, account string,
) *DirectorySet {
	entry, err := r.store.Get(ctx, account)
	if err != nil {
		log.WithError(err).Warn("Failed to read directory cache")

		return nil
	}

	if entry == nil {
		return nil
	}

	dirs := &DirectorySet{
		Root:    entry.RootID,
		Scenes:  entry.ScenesID,
		Avatars: entry.AvatarsID,
		Props:   entry.PropsID,
	}

	if err := validate(ctx, client, dirs); err != nil {
		log.WithError(err).Debug("Discarding cached drive directories")

		return nil
	}

	return dirs
}

// validate checks that each cached id is a live folder and that every
// category folder sits under the root.
func validate(ctx context.Context, client Client, dirs *DirectorySet) error {
	if !dirs.Complete() {
		return errStaleEntry
	}

	if err := checkFolder(ctx, client, dirs.Root, RootFolderName, ""); err != nil {
		return err
	}

	for _, child := range dirs.children() {
		if err := checkFolder(ctx, client, *child.id, child.name, dirs.Root); err != nil {
			return err
		}
	}

	return nil
}

func checkFolder(ctx context.Context, client Client, id, name, parentID string) error {
	f, err := client.GetFile(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return errStaleEntry
		}

		return &ProviderError{Op: "get folder", Err: err}
	}

	if f.Trashed || f.MimeType != FolderMimeType || f.Name != name {
		return errStaleEntry
	}

	if parentID != "" && !slices.Contains(f.Parents, parentID) {
		return errStaleEntry
	}

	return nil
}

// accountKey identifies the authenticated Drive account.
func accountKey(ctx context.Context, client Client) (string, error) {
	about, err := client.About(ctx)
	if err != nil {
		return "", &ProviderError{Op: "about", Err: err}
	}

	if about == nil || about.User == nil {
		return "", errors.New("drive returned no user")
	}

	if about.User.PermissionId != "" {
		return about.User.PermissionId, nil
	}

	if about.User.EmailAddress != "" {
		return about.User.EmailAddress, nil
	}

	return "", errors.New("drive user has no identifier")
}
