package export

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore is the Google Cloud Storage implementation of ObjectStore.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a store with its own storage client.
func NewGCSStore(ctx context.Context) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: create storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// Close closes the storage client.
func (s *GCSStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Put implements ObjectStore.
func (s *GCSStore) Put(ctx context.Context, bucket, object, contentType string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("Put: write gs://%s/%s: %w", bucket, object, err)
	}
	// Close finalizes the upload.
	if err := w.Close(); err != nil {
		return fmt.Errorf("Put: finalize gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

// Get implements ObjectStore.
func (s *GCSStore) Get(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("Get: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("Get: reading bytes: %w", err)
	}
	return data, nil
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object path.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// ObjectName returns the last path element of a GCS URI.
// e.g., "gs://bucket/reports/ledger.json" → "ledger.json"
func ObjectName(uri string) string {
	trimmed := strings.TrimPrefix(uri, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}

var _ ObjectStore = (*GCSStore)(nil)
