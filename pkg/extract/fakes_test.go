package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// peak records the highest number of concurrent callers between enter and leave.
type peak struct {
	cur, max atomic.Int32
}

func (p *peak) enter() {
	n := p.cur.Add(1)
	for {
		m := p.max.Load()
		if n <= m || p.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (p *peak) leave() { p.cur.Add(-1) }

// fakePage is a page whose content arrives after delay, or fails with err.
// When fetches is set, TextContent reports its calls to it.
type fakePage struct {
	runs    []TextRun
	delay   time.Duration
	err     error
	fetches *peak
}

type fakeDoc struct {
	pages []fakePage
}

// fakeDecoder looks documents up by the string value of the buffer.
type fakeDecoder struct {
	docs      map[string]*fakeDoc
	openDelay map[string]time.Duration
	openErr   map[string]error

	opens peak

	mu     sync.Mutex
	opened []string
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		docs:      map[string]*fakeDoc{},
		openDelay: map[string]time.Duration{},
		openErr:   map[string]error{},
	}
}

func (d *fakeDecoder) add(name string, pages ...fakePage) RawFile {
	d.docs[name] = &fakeDoc{pages: pages}
	return RawFile{FileName: name + ".pdf", Buffer: []byte(name)}
}

func (d *fakeDecoder) Open(ctx context.Context, buf []byte) (Document, error) {
	d.opens.enter()
	defer d.opens.leave()

	key := string(buf)
	d.mu.Lock()
	d.opened = append(d.opened, key)
	d.mu.Unlock()

	if delay := d.openDelay[key]; delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := d.openErr[key]; err != nil {
		return nil, err
	}
	doc, ok := d.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown document %q", ErrDecode, key)
	}
	return doc, nil
}

func (d *fakeDoc) PageCount() int { return len(d.pages) }

func (d *fakeDoc) Page(ctx context.Context, index int) (Page, error) {
	if index < 1 || index > len(d.pages) {
		return nil, fmt.Errorf("%w: %d", ErrIndex, index)
	}
	return &d.pages[index-1], nil
}

func (p *fakePage) TextContent(ctx context.Context) ([]TextRun, error) {
	if p.fetches != nil {
		p.fetches.enter()
		defer p.fetches.leave()
	}
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.runs, nil
}

func run(s string, x, y, w, h float64) TextRun {
	return TextRun{Str: s, Transform: [6]float64{h, 0, 0, h, x, y}, Width: w, Height: h}
}

func page(delay time.Duration, texts ...string) fakePage {
	runs := make([]TextRun, len(texts))
	for i, t := range texts {
		runs[i] = run(t, float64(10*i), 700, float64(5*len(t)), 12)
	}
	return fakePage{runs: runs, delay: delay}
}

var errBroken = errors.New("broken stream")

// failingHandle cannot be opened.
type failingHandle string

func (f failingHandle) Name() string { return string(f) }
func (f failingHandle) Open() (io.ReadCloser, error) {
	return nil, errBroken
}
