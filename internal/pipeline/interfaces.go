package pipeline

import (
	"context"
)

// ReportExporter publishes a finished report and returns where it was written.
// *export.Exporter implements it.
type ReportExporter interface {
	Export(ctx context.Context, name string, v interface{}) (string, error)
}
