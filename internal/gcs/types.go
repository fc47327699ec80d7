package gcs

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidURI is returned for gs:// URIs without a bucket or object path.
var ErrInvalidURI = errors.New("invalid GCS URI")

const scheme = "gs://"

// ObjectStore reads and writes whole objects by URI.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Read returns the bytes at uri: a gs:// object or a local path.
	Read(ctx context.Context, uri string) ([]byte, error)

	// Write stores data at uri, replacing what was there.
	Write(ctx context.Context, uri string, data []byte) error
}

// IsGCSURI reports whether uri points into a bucket.
func IsGCSURI(uri string) bool {
	return strings.HasPrefix(uri, scheme)
}

// ParseURI splits gs://bucket/object into its parts.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidURI, uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, scheme), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w (no object path): %s", ErrInvalidURI, uri)
	}
	return parts[0], parts[1], nil
}

// ExtractFilename returns the last path element of a gs:// URI or local path.
// e.g., "gs://bucket/runs/out.csv" → "out.csv"
func ExtractFilename(uri string) string {
	if !IsGCSURI(uri) {
		return filepath.Base(uri)
	}
	trimmed := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

// Join appends name to a directory-like URI.
func Join(base, name string) string {
	if IsGCSURI(base) {
		return scheme + path.Join(strings.TrimPrefix(base, scheme), name)
	}
	return filepath.Join(base, name)
}
