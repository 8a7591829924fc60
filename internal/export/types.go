// Package export publishes computed reports as JSON objects in cloud storage.
package export

import (
	"context"
)

// ObjectStore provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type ObjectStore interface {
	// Put writes data to bucket/object, replacing any existing object.
	Put(ctx context.Context, bucket, object, contentType string, data []byte) error

	// Get downloads the bytes of the object at a gs:// URI.
	Get(ctx context.Context, uri string) ([]byte, error)
}
