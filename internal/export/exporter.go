package export

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/dvloznov/cash-ledger/internal/logger"
)

const jsonContentType = "application/json"

// Exporter writes report snapshots under a bucket prefix.
type Exporter struct {
	store  ObjectStore
	bucket string
	prefix string
	now    func() time.Time
}

// NewExporter creates an exporter writing to gs://bucket/prefix/.
func NewExporter(store ObjectStore, bucket, prefix string) *Exporter {
	return &Exporter{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
	}
}

// ObjectPath returns the object path for a snapshot named name.
// Snapshots are grouped by day of export: prefix/2024-03-31/name.json.
func (e *Exporter) ObjectPath(name string) string {
	day := e.now().UTC().Format("2006-01-02")
	return path.Join(e.prefix, day, name+".json")
}

// Export marshals v as indented JSON and writes it, returning the gs:// URI.
func (e *Exporter) Export(ctx context.Context, name string, v interface{}) (string, error) {
	if e.bucket == "" {
		return "", fmt.Errorf("Export: bucket is not configured")
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("Export: encoding %s: %w", name, err)
	}

	object := e.ObjectPath(name)
	if err := e.store.Put(ctx, e.bucket, object, jsonContentType, data); err != nil {
		return "", fmt.Errorf("Export: %w", err)
	}

	uri := fmt.Sprintf("gs://%s/%s", e.bucket, object)
	log := logger.FromContext(ctx)
	log.Info().
		Str("uri", uri).
		Int("bytes", len(data)).
		Msg("Exported report")
	return uri, nil
}

// Fetch downloads a JSON object and decodes it into v.
func Fetch(ctx context.Context, store ObjectStore, uri string, v interface{}) error {
	data, err := store.Get(ctx, uri)
	if err != nil {
		return fmt.Errorf("Fetch: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("Fetch: decoding %s: %w", ObjectName(uri), err)
	}
	return nil
}
