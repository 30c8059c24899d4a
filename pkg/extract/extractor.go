package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sanonone/pdfdrop/pkg/metrics"
)

// Options tune the Extractor. The zero value is a valid strict, unbounded extractor.
type Options struct {
	// MaxConcurrentDocuments caps documents decoded at the same time. 0 = unlimited.
	MaxConcurrentDocuments int
	// MaxConcurrentPages caps pages fetched at the same time within one document. 0 = unlimited.
	MaxConcurrentPages int
	// MaxFiles rejects batches with more files. 0 = unlimited.
	MaxFiles int
	// PartialResults reports failures per file instead of failing the whole batch.
	PartialResults bool
}

// Extractor fans out over files and pages and joins the results into a Batch.
// It holds no state between calls and is safe for concurrent use.
type Extractor struct {
	decoder Decoder
	reader  *FileReader
	opts    Options
}

// NewExtractor builds an extractor. A nil reader means no file size limit.
func NewExtractor(decoder Decoder, reader *FileReader, opts Options) *Extractor {
	if reader == nil {
		reader = NewFileReader(0)
	}
	return &Extractor{decoder: decoder, reader: reader, opts: opts}
}

// Options returns the options the extractor was built with.
func (e *Extractor) Options() Options { return e.opts }

// WithOptions returns an extractor sharing e's decoder and reader but using opts.
func (e *Extractor) WithOptions(opts Options) *Extractor {
	return &Extractor{decoder: e.decoder, reader: e.reader, opts: opts}
}

// Reader returns the file reader used by ExtractFiles.
func (e *Extractor) Reader() *FileReader { return e.reader }

// ExtractFiles reads every handle and extracts the resulting files.
// Reading is join-all: one unreadable file fails the call before any decoding starts.
func (e *Extractor) ExtractFiles(ctx context.Context, handles []FileHandle) (Batch, error) {
	if err := e.checkCount(len(handles)); err != nil {
		return nil, err
	}
	files, err := e.reader.ReadAll(ctx, handles)
	if err != nil {
		metrics.ExtractErrorsTotal.WithLabelValues(Kind(err)).Inc()
		return nil, err
	}
	return e.Extract(ctx, files)
}

// Extract decodes every file concurrently and returns one FileResult per file, in input order.
//
// In the default strict mode the first failure cancels the remaining work, Extract waits
// for every goroutine to return and then fails as a whole with a *FileError; no partial
// batch is returned. With PartialResults, failed files carry Error and empty pages and the
// call only fails when ctx itself is done.
func (e *Extractor) Extract(ctx context.Context, files []RawFile) (Batch, error) {
	if err := e.checkCount(len(files)); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() { metrics.ExtractBatchDuration.Observe(time.Since(start).Seconds()) }()

	batch := make(Batch, len(files))

	var g *errgroup.Group
	gctx := ctx
	if e.opts.PartialResults {
		g = &errgroup.Group{}
	} else {
		g, gctx = errgroup.WithContext(ctx)
	}
	if e.opts.MaxConcurrentDocuments > 0 {
		g.SetLimit(e.opts.MaxConcurrentDocuments)
	}

	for i, f := range files {
		g.Go(func() error {
			pages, err := e.extractDocument(gctx, f)
			if err != nil {
				ferr := fileError(i, f.FileName, err)
				metrics.ExtractFilesTotal.WithLabelValues("failed").Inc()
				metrics.ExtractErrorsTotal.WithLabelValues(Kind(err)).Inc()
				if e.opts.PartialResults {
					slog.Warn("[EXTRACT] File failed", "file", f.FileName, "index", i, "kind", Kind(err), "error", err)
					batch[i] = FileResult{FileName: f.FileName, Pages: Pages{}, Error: ferr.Error()}
					return nil
				}
				return ferr
			}
			metrics.ExtractFilesTotal.WithLabelValues("ok").Inc()
			batch[i] = FileResult{FileName: f.FileName, Pages: pages}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("[EXTRACT] Batch failed", "files", len(files), "kind", Kind(err), "error", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Debug("[EXTRACT] Batch done", "files", len(files), "fragments", batch.FragmentCount(), "duration", time.Since(start).String())
	return batch, nil
}

// extractDocument opens one document and fetches all of its pages concurrently.
// Any page failure fails the document.
func (e *Extractor) extractDocument(ctx context.Context, f RawFile) (Pages, error) {
	metrics.DocumentsInFlight.Inc()
	defer metrics.DocumentsInFlight.Dec()

	doc, err := e.decoder.Open(ctx, f.Buffer)
	if err != nil {
		return nil, classify(err)
	}

	n := doc.PageCount()
	if n < 0 {
		return nil, fmt.Errorf("%w: negative page count %d", ErrDecode, n)
	}
	pages := make(Pages, n)

	g, gctx := errgroup.WithContext(ctx)
	if e.opts.MaxConcurrentPages > 0 {
		g.SetLimit(e.opts.MaxConcurrentPages)
	}
	for i := 1; i <= n; i++ {
		g.Go(func() error {
			page, err := doc.Page(gctx, i)
			if err != nil {
				return &pageError{page: i, err: classify(err)}
			}
			runs, err := page.TextContent(gctx)
			if err != nil {
				return &pageError{page: i, err: classify(err)}
			}
			pages[i-1] = Transform(runs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	metrics.ExtractPagesTotal.Add(float64(n))
	return pages, nil
}

func (e *Extractor) checkCount(n int) error {
	if e.opts.MaxFiles > 0 && n > e.opts.MaxFiles {
		return fmt.Errorf("%w: %d files dropped, at most %d allowed", ErrLimitExceeded, n, e.opts.MaxFiles)
	}
	return nil
}

func fileError(index int, name string, err error) *FileError {
	fe := &FileError{Index: index, FileName: name, Err: err}
	var pe *pageError
	if errors.As(err, &pe) {
		fe.Page = pe.page
		fe.Err = pe.err
	}
	return fe
}
