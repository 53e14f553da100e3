package drive

import (
	"context"

	"github.com/sirupsen/logrus"
	drive "google.golang.org/api/drive/v3"
)

// Locator finds a previously uploaded bundle so it can be replaced in place.
type Locator struct {
	log logrus.FieldLogger
}

// NewLocator creates a new Locator.
func NewLocator(log logrus.FieldLogger) *Locator {
	return &Locator{
		log: log.WithField("component", "file-locator"),
	}
}

// FindExisting returns the first non-trashed, non-folder file named exactly
// fileName inside folderID, or nil when there is none. Duplicates are left
// for the user to clean up in Drive.
func (l *Locator) FindExisting(
	ctx context.Context, client Client, folderID, fileName string,
) (*drive.File, error) {
	for f, err := range Files(ctx, client, fileInFolderQuery(folderID, fileName)) {
		if err != nil {
			return nil, err
		}

		l.log.WithFields(logrus.Fields{
			"name": fileName,
			"id":   f.Id,
		}).Debug("Found existing file")

		return f, nil
	}

	return nil, nil
}
