// Package gcs reads and writes snapshot objects addressed by gs:// URIs.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

const uriPrefix = "gs://"

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Read downloads the object at the given gs:// URI.
	Read(ctx context.Context, uri string) ([]byte, error)

	// Write uploads data to the given gs:// URI, replacing any existing object.
	Write(ctx context.Context, uri string, data []byte, contentType string) error
}

// IsURI reports whether path addresses a GCS object.
func IsURI(path string) bool {
	return strings.HasPrefix(path, uriPrefix)
}

// ParseURI splits "gs://bucket/path/to/object" into bucket and object names.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, uriPrefix), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// Store is the ObjectStore backed by Google Cloud Storage.
// It assumes Application Default Credentials are configured.
type Store struct {
	client *storage.Client
}

// NewStore creates a Store with its own storage client.
func NewStore(ctx context.Context) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating storage client: %w", err)
	}
	return &Store{client: client}, nil
}

// Close releases the storage client.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Read downloads the object bytes from the given GCS URI.
func (s *Store) Read(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Read: opening object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Read: reading bytes: %w", err)
	}
	return data, nil
}

// Write uploads data to the given GCS URI.
func (s *Store) Write(ctx context.Context, uri string, data []byte, contentType string) error {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Write: copying to GCS writer: %w", err)
	}

	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Write: finalize upload: %w", err)
	}
	return nil
}

var _ ObjectStore = (*Store)(nil)
