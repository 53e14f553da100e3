// Package bundle locates and opens the locally built avatar bundle.
//
// The build pipeline writes every platform variant into a single file with
// a fixed extension and a random name, and only one such file is expected
// in the output directory at a time.
package bundle

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned when no bundle file exists in the scanned directory.
var ErrNotFound = errors.New("avatar bundle not found")

// Bundle is an opened local avatar bundle.
type Bundle struct {
	Path string
	Size int64

	file *os.File
}

// Ensure the bundle can be handed to the upload driver as a stream.
var _ io.ReadCloser = (*Bundle)(nil)

// Find returns the path of the first regular file in dir whose name ends
// with ext. Entries are visited in lexical order. A missing directory is
// reported as ErrNotFound.
func Find(dir, ext string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
		}

		return "", fmt.Errorf("reading bundle directory %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		if strings.HasSuffix(entry.Name(), ext) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}

	return "", fmt.Errorf("%w in %s", ErrNotFound, dir)
}

// Open opens the bundle at path for reading and records its size.
func Open(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening bundle: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()

		return nil, fmt.Errorf("stat bundle: %w", err)
	}

	return &Bundle{
		Path: path,
		Size: info.Size(),
		file: f,
	}, nil
}

// Read implements io.Reader.
func (b *Bundle) Read(p []byte) (int, error) {
	if b.file == nil {
		return 0, os.ErrClosed
	}

	return b.file.Read(p)
}

// Close closes the underlying file. It is safe to call more than once.
func (b *Bundle) Close() error {
	if b.file == nil {
		return nil
	}

	err := b.file.Close()
	b.file = nil

	return err
}

// Closed reports whether Close has been called.
func (b *Bundle) Closed() bool {
	return b.file == nil
}
