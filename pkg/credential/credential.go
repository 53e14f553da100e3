package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/avataroor/pkg/fsutil"
	"github.com/sirupsen/logrus"
)

// ErrNoToken is returned when no OAuth token has been stored.
var ErrNoToken = errors.New("no oauth token stored")

// Store persists the Drive OAuth access token between runs.
type Store interface {
	// Load returns the stored token or ErrNoToken.
	Load() (string, error)

	// Save stores token, replacing any previous value.
	Save(token string) error

	// Delete removes the stored token. Deleting a missing token is not an error.
	Delete() error
}

// Compile-time interface check.
var _ Store = (*fileStore)(nil)

type fileStore struct {
	log  logrus.FieldLogger
	path string
}

// document is the on-disk layout of the credentials file.
type document struct {
	OAuthToken string `json:"oauth_token"`
}

// NewFileStore returns a Store backed by a JSON file at path.
func NewFileStore(log logrus.FieldLogger, path string) Store {
	return &fileStore{
		log:  log.WithField("component", "credential-store"),
		path: path,
	}
}

// Load reads the token from disk.
func (s *fileStore) Load() (string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}

		return "", fmt.Errorf("reading credentials file: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", fmt.Errorf("parsing credentials file %s: %w", s.path, err)
	}

	token := strings.TrimSpace(doc.OAuthToken)
	if token == "" {
		return "", ErrNoToken
	}

	return token, nil
}

// Save writes the token with owner-only permissions.
func (s *fileStore) Save(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("refusing to store an empty token")
	}

	data, err := json.MarshalIndent(document{OAuthToken: token}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	if err := fsutil.WriteFileAtomic(s.path, data, 0o600, 0o700); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}

	s.log.WithField("path", s.path).Debug("Stored oauth token")

	return nil
}

// Delete removes the credentials file.
func (s *fileStore) Delete() error {
	if err := fsutil.RemoveIfExists(s.path); err != nil {
		return fmt.Errorf("deleting credentials file: %w", err)
	}

	s.log.WithField("path", s.path).Debug("Removed oauth token")

	return nil
}

// Mask returns token with all but the last four characters hidden.
func Mask(token string) string {
	const visible = 4

	if len(token) <= visible {
		return strings.Repeat("*", len(token))
	}

	return strings.Repeat("*", len(token)-visible) + token[len(token)-visible:]
}
