package extract

import "context"

// TextRun is one contiguous piece of text as reported by the decoding layer.
// Transform is a 2D affine matrix [a b c d e f]; e and f are the origin of the run.
type TextRun struct {
	Str       string
	Transform [6]float64
	Width     float64
	Height    float64
}

// Decoder opens an in-memory document.
type Decoder interface {
	// Open fails with ErrDecode when buf is not a parseable document.
	Open(ctx context.Context, buf []byte) (Document, error)
}

// Document is an opened document.
type Document interface {
	PageCount() int
	// Page returns page index, 1-based. Out-of-range indices fail with ErrIndex.
	Page(ctx context.Context, index int) (Page, error)
}

// Page is one page of a Document.
type Page interface {
	// TextContent returns the page's text runs in content stream order.
	TextContent(ctx context.Context) ([]TextRun, error)
}
