package extract

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrRead: a file could not be read into memory.
	ErrRead = errors.New("read error")
	// ErrDecode: the bytes are not a parseable document, or a page's content is broken.
	ErrDecode = errors.New("decode error")
	// ErrIndex: a page index outside 1..PageCount was requested. Indicates a bug in the caller.
	ErrIndex = errors.New("page index out of range")
	// ErrUnknownIO: catch-all for failures of the underlying I/O adapters.
	ErrUnknownIO = errors.New("unknown i/o error")
	// ErrLimitExceeded: a configured size or count limit was hit.
	ErrLimitExceeded = errors.New("limit exceeded")
)

// Error kinds reported by Kind.
const (
	KindRead     = "read"
	KindDecode   = "decode"
	KindIndex    = "index"
	KindIO       = "io"
	KindLimit    = "limit"
	KindCanceled = "canceled"
	KindUnknown  = "unknown"
)

// Kind classifies err by its sentinel. Cancellation wins over everything else.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.Is(err, ErrLimitExceeded):
		return KindLimit
	case errors.Is(err, ErrRead):
		return KindRead
	case errors.Is(err, ErrDecode):
		return KindDecode
	case errors.Is(err, ErrIndex):
		return KindIndex
	case errors.Is(err, ErrUnknownIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// FileError attaches the failing file (and page, when known) to an extraction error.
type FileError struct {
	Index    int    // position of the file in the drop
	FileName string // display name, unmodified
	Page     int    // 1-based page number, 0 when the failure is not page specific
	Err      error
}

func (e *FileError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("file %q (#%d) page %d: %v", e.FileName, e.Index, e.Page, e.Err)
	}
	return fmt.Sprintf("file %q (#%d): %v", e.FileName, e.Index, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// pageError is used inside a document before the file context is known.
type pageError struct {
	page int
	err  error
}

func (e *pageError) Error() string { return fmt.Sprintf("page %d: %v", e.page, e.err) }
func (e *pageError) Unwrap() error { return e.err }

// classify makes sure an adapter error carries one of the taxonomy sentinels.
// Errors that already do (or are cancellations) pass through untouched.
func classify(err error) error {
	if err == nil || Kind(err) != KindUnknown {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUnknownIO, err)
}
