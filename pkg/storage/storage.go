// Package storage saves exported files, either to a local directory or to an
// S3-compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrInvalidName is returned (wrapped) for names that are empty, absolute or
// escape the store root.
var ErrInvalidName = errors.New("storage: invalid name")

// Store holds exported files.
//
// Names are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type Store interface {
	// Save writes data under name, replacing any previous file, and returns
	// where it was written (a filesystem path or an s3:// URL).
	Save(ctx context.Context, name string, data []byte) (string, error)

	// Open opens the named file for reading. The caller closes it.
	// A missing file yields an error wrapping os.ErrNotExist.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, name string) (bool, error)

	// Delete removes the named file. Deleting a missing file is not an error.
	Delete(ctx context.Context, name string) error
}

// ContentType returns the MIME type exports are served with.
func ContentType(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".wav":
		return "audio/wav"
	case ".txt":
		return "text/plain; charset=utf-8"
	case ".json":
		return "application/json"
	}
	return "application/octet-stream"
}

func cleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}
