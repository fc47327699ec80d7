package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
)

// Store is the ObjectStore backed by Google Cloud Storage for gs:// URIs and
// the local filesystem for everything else.
// It assumes Application Default Credentials are configured (gcloud auth application-default login).
type Store struct {
	// UploadTimeout bounds a single object write.
	UploadTimeout time.Duration
}

// NewStore creates a new Store.
func NewStore() *Store {
	return &Store{UploadTimeout: 2 * time.Minute}
}

// Read implements ObjectStore.
func (s *Store) Read(ctx context.Context, uri string) ([]byte, error) {
	if !IsGCSURI(uri) {
		data, err := os.ReadFile(uri)
		if err != nil {
			return nil, fmt.Errorf("Read: %w", err)
		}
		return data, nil
	}

	bucketName, objectPath, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("Read: creating storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Read: reading object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: reading bytes: %w", err)
	}
	return data, nil
}

// Write implements ObjectStore. Local parent directories are created.
func (s *Store) Write(ctx context.Context, uri string, data []byte) error {
	if !IsGCSURI(uri) {
		if dir := filepath.Dir(uri); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("Write: create directory %q: %w", dir, err)
			}
		}
		if err := os.WriteFile(uri, data, 0o644); err != nil {
			return fmt.Errorf("Write: %w", err)
		}
		return nil
	}

	bucketName, objectPath, err := ParseURI(uri)
	if err != nil {
		return err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("Write: create storage client: %w", err)
	}
	defer client.Close()

	if s.UploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.UploadTimeout)
		defer cancel()
	}

	w := client.Bucket(bucketName).Object(objectPath).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: copy to GCS writer: %w", err)
	}
	// Close finalizes the upload
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalize upload: %w", err)
	}
	return nil
}

// UploadFile copies a local file to uri.
func (s *Store) UploadFile(ctx context.Context, filePath, uri string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("UploadFile: open file %q: %w", filePath, err)
	}
	return s.Write(ctx, uri, data)
}
