// Package drop connects a drop of files to the extractor and hands the result to the UI.
package drop

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

// Sink is the UI boundary a Controller delivers batches to.
type Sink interface {
	PDFsLoaded(ctx context.Context, batch extract.Batch) error
}

// FailureSink is implemented by sinks that want to hear about failed drops.
type FailureSink interface {
	ExtractionFailed(ctx context.Context, err error)
}

// ErrNoFiles is returned when a drop carries no files.
var ErrNoFiles = errors.New("no files dropped")

// Controller runs one extraction per drop and delivers the batch to its sink.
type Controller struct {
	extractor *extract.Extractor
	sink      Sink
}

// NewController wires a controller to the UI handle it will deliver to.
func NewController(extractor *extract.Extractor, sink Sink) *Controller {
	return &Controller{extractor: extractor, sink: sink}
}

// FilesDropped extracts the dropped files in order. On success the batch is delivered to
// the sink exactly once; on failure nothing is delivered, the sink is told (if it is a
// FailureSink) and the error is returned.
func (c *Controller) FilesDropped(ctx context.Context, files []extract.FileHandle) error {
	if len(files) == 0 {
		c.fail(ctx, ErrNoFiles)
		return ErrNoFiles
	}

	batch, err := c.extractor.ExtractFiles(ctx, files)
	if err != nil {
		slog.Warn("[DROP] Extraction failed", "files", len(files), "kind", extract.Kind(err), "error", err)
		c.fail(ctx, err)
		return err
	}

	slog.Info("[DROP] PDFs loaded", "files", len(batch), "fragments", batch.FragmentCount())
	return c.sink.PDFsLoaded(ctx, batch)
}

func (c *Controller) fail(ctx context.Context, err error) {
	if fs, ok := c.sink.(FailureSink); ok {
		fs.ExtractionFailed(ctx, err)
	}
}
