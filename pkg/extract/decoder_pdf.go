package extract

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/font"
)

// defaultMergeTolerance is the largest horizontal gap, as a fraction of the font size,
// between two glyphs that still belong to the same run.
const defaultMergeTolerance = 0.2

// PDFDecoder decodes PDF documents with github.com/ledongthuc/pdf.
//
// The library reports text one glyph at a time. PDFDecoder merges consecutive glyphs that
// share font, size and baseline and touch horizontally into a single TextRun.
type PDFDecoder struct {
	// Strict runs a pdfcpu validation pass before opening the document.
	Strict bool
	// MergeTolerance overrides defaultMergeTolerance when > 0.
	MergeTolerance float64
}

// NewPDFDecoder returns a decoder. With strict set, documents that fail pdfcpu validation
// (including unsupported encryption) are rejected up front.
func NewPDFDecoder(strict bool) *PDFDecoder {
	return &PDFDecoder{Strict: strict}
}

func (d *PDFDecoder) Open(ctx context.Context, buf []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrDecode)
	}
	if d.Strict {
		if err := Validate(buf); err != nil {
			return nil, err
		}
	}

	var (
		count int
		r     *pdf.Reader
	)
	err := safely(func() error {
		var err error
		r, err = newReader(buf)
		if err != nil {
			return err
		}
		count = r.NumPage()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if count < 0 {
		count = 0
	}

	tol := d.MergeTolerance
	if tol <= 0 {
		tol = defaultMergeTolerance
	}
	doc := &pdfDocument{buf: buf, pages: count, tol: tol}
	doc.readers.Put(r)
	return doc, nil
}

func newReader(buf []byte) (*pdf.Reader, error) {
	return pdf.NewReader(bytes.NewReader(buf), int64(len(buf)))
}

// pdfDocument keeps the immutable buffer and a pool of readers over it. A reader is
// used by one page at a time, so the xref table is parsed once per concurrent page
// fetch rather than once per page.
type pdfDocument struct {
	buf     []byte
	pages   int
	tol     float64
	readers sync.Pool
}

func (d *pdfDocument) reader() (*pdf.Reader, error) {
	if r, ok := d.readers.Get().(*pdf.Reader); ok {
		return r, nil
	}
	return newReader(d.buf)
}

func (d *pdfDocument) PageCount() int { return d.pages }

func (d *pdfDocument) Page(ctx context.Context, index int) (Page, error) {
	if index < 1 || index > d.pages {
		return nil, fmt.Errorf("%w: page %d of %d", ErrIndex, index, d.pages)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &pdfPage{doc: d, index: index}, nil
}

type pdfPage struct {
	doc   *pdfDocument
	index int
}

func (p *pdfPage) TextContent(ctx context.Context) ([]TextRun, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var glyphs []pdf.Text
	err := safely(func() error {
		r, err := p.doc.reader()
		if err != nil {
			return err
		}
		page := r.Page(p.index)
		if page.V.IsNull() {
			p.doc.readers.Put(r)
			return fmt.Errorf("page %d is missing from the page tree", p.index)
		}
		glyphs = page.Content().Text
		// only reached without a panic, so the reader is still usable
		p.doc.readers.Put(r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return mergeGlyphs(glyphs, p.doc.tol), nil
}

// mergeGlyphs folds per-glyph output into runs, keeping emission order.
func mergeGlyphs(glyphs []pdf.Text, tol float64) []TextRun {
	runs := make([]TextRun, 0, len(glyphs))

	var (
		open       bool
		face       string
		size, x, y float64
		end        float64
		sb         strings.Builder
	)
	flush := func() {
		if !open {
			return
		}
		runs = append(runs, TextRun{
			Str:       sb.String(),
			Transform: [6]float64{size, 0, 0, size, x, y},
			Width:     end - x,
			Height:    size,
		})
		sb.Reset()
		open = false
	}

	// The library only advances the pen by widths it finds in the font dictionary.
	// For standard fonts without /Widths every glyph of a string reports the same X,
	// so the pen is advanced here by the fallback width instead.
	var (
		pen          float64
		lastX, lastY float64
		lastFallback bool
	)

	for _, g := range glyphs {
		gx, w := g.X, g.W
		fallback := false
		if w == 0 {
			if cw, ok := coreFontWidth(g.Font, g.S, g.FontSize); ok {
				w, fallback = cw, true
			}
		}
		if fallback && lastFallback && g.X == lastX && g.Y == lastY {
			gx = pen
		}
		pen = gx + w
		lastX, lastY, lastFallback = g.X, g.Y, fallback

		if open && g.Font == face && g.FontSize == size && sameBaseline(g.Y, y) && adjacent(end, gx, size*tol) {
			sb.WriteString(g.S)
			end = math.Max(end, gx+w)
			continue
		}
		flush()
		open = true
		face, size, x, y = g.Font, g.FontSize, gx, g.Y
		end = gx + w
		sb.WriteString(g.S)
	}
	flush()
	return runs
}

// coreFontWidth measures s with the AFM metrics of one of the 14 standard fonts.
// It reports false for any other font.
func coreFontWidth(fontName, s string, size float64) (float64, bool) {
	if !font.IsCoreFont(fontName) {
		return 0, false
	}
	var units int
	for _, r := range s {
		units += font.CharWidth(fontName, r)
	}
	return float64(units) / 1000 * size, true
}

func sameBaseline(a, b float64) bool {
	return math.Abs(a-b) < 0.01
}

// adjacent reports whether a glyph starting at next continues a run ending at end.
func adjacent(end, next, gap float64) bool {
	return next >= end-gap && next <= end+gap
}

// safely turns panics raised by the PDF library on malformed input into errors.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()
	return fn()
}
