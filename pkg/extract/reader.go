package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"
)

// FileHandle is a dropped file that has not been read yet.
type FileHandle interface {
	// Name is the display name of the file. It is carried into the result unmodified.
	Name() string
	Open() (io.ReadCloser, error)
}

// PathHandle is a file on the local filesystem. Its display name is the base name.
type PathHandle string

func (p PathHandle) Name() string                 { return filepath.Base(string(p)) }
func (p PathHandle) Open() (io.ReadCloser, error) { return os.Open(string(p)) }

// BytesHandle is a file that is already in memory.
type BytesHandle struct {
	FileName string
	Data     []byte
}

func (b BytesHandle) Name() string { return b.FileName }
func (b BytesHandle) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.Data)), nil
}

// FileReader reads file handles into RawFiles.
type FileReader struct {
	// MaxFileBytes rejects files larger than this many bytes. 0 means no limit.
	MaxFileBytes int64
}

// NewFileReader returns a reader that rejects files above maxFileBytes (0 = unlimited).
func NewFileReader(maxFileBytes int64) *FileReader {
	return &FileReader{MaxFileBytes: maxFileBytes}
}

// Read loads the whole file into memory. Every failure, including a cancelled context,
// is reported as ErrRead.
func (fr *FileReader) Read(ctx context.Context, h FileHandle) (RawFile, error) {
	name := h.Name()
	if err := ctx.Err(); err != nil {
		return RawFile{}, fmt.Errorf("%w: %s: %w", ErrRead, name, err)
	}

	rc, err := h.Open()
	if err != nil {
		return RawFile{}, fmt.Errorf("%w: open %s: %w", ErrRead, name, err)
	}
	defer rc.Close()

	var src io.Reader = &ctxReader{ctx: ctx, r: rc}
	if fr.MaxFileBytes > 0 {
		src = io.LimitReader(src, fr.MaxFileBytes+1)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(src); err != nil {
		return RawFile{}, fmt.Errorf("%w: read %s: %w", ErrRead, name, err)
	}
	if fr.MaxFileBytes > 0 && int64(buf.Len()) > fr.MaxFileBytes {
		return RawFile{}, fmt.Errorf("%w: %w: %s is larger than %d bytes", ErrRead, ErrLimitExceeded, name, fr.MaxFileBytes)
	}

	return RawFile{FileName: name, Buffer: buf.Bytes()}, nil
}

// ReadAll reads every handle concurrently and returns the files in handle order.
// It fails as a whole if any single read fails.
func (fr *FileReader) ReadAll(ctx context.Context, handles []FileHandle) ([]RawFile, error) {
	files := make([]RawFile, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handles {
		g.Go(func() error {
			f, err := fr.Read(gctx, h)
			if err != nil {
				return &FileError{Index: i, FileName: h.Name(), Err: err}
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return files, nil
}

// ctxReader stops reading as soon as the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
