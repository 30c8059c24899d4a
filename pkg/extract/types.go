// Package extract turns dropped PDF files into page-indexed, positioned text fragments.
//
// The pipeline is: FileReader (handle -> RawFile) -> Decoder (bytes -> pages of text runs)
// -> Transform (runs -> fragments) -> Extractor (fan-out over files and pages, join into a
// Batch). Results are always reassembled by origin index, so concurrency never changes the
// observable order of files, pages or fragments.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// RawFile is a dropped file read fully into memory.
type RawFile struct {
	FileName string
	Buffer   []byte
}

// TextFragment is one positioned piece of text on a page.
// X and Y are the baseline origin in page space, Width and Height the bounding box.
type TextFragment struct {
	Text   string  `json:"text"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// PageFragments holds the fragments of one page in content stream order.
type PageFragments []TextFragment

// Pages holds the fragments of every page of a document. Index i is page i+1.
//
// On the wire it is an object keyed by the zero-based page index as a decimal string
// ({"0": [...], "1": [...]}), with keys written in page order.
type Pages []PageFragments

// PageKey returns the wire key of the zero-based page index i.
func PageKey(i int) string {
	return strconv.Itoa(i)
}

// Page returns the fragments stored under a wire key such as "0".
func (p Pages) Page(key string) (PageFragments, bool) {
	i, err := strconv.Atoi(key)
	if err != nil || i < 0 || i >= len(p) || PageKey(i) != key {
		return nil, false
	}
	return p[i], true
}

// Keys returns the wire keys in page order.
func (p Pages) Keys() []string {
	keys := make([]string, len(p))
	for i := range p {
		keys[i] = PageKey(i)
	}
	return keys
}

func (p Pages) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, frags := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(PageKey(i)))
		buf.WriteByte(':')
		if frags == nil {
			frags = PageFragments{}
		}
		b, err := json.Marshal([]TextFragment(frags))
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Pages) UnmarshalJSON(data []byte) error {
	var raw map[string]PageFragments
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	idx := make([]int, 0, len(raw))
	for k := range raw {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || PageKey(i) != k {
			return fmt.Errorf("invalid page key %q", k)
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for want, got := range idx {
		if want != got {
			return fmt.Errorf("page keys are not contiguous: missing %q", PageKey(want))
		}
	}
	out := make(Pages, len(idx))
	for _, i := range idx {
		frags := raw[PageKey(i)]
		if frags == nil {
			frags = PageFragments{}
		}
		out[i] = frags
	}
	*p = out
	return nil
}

// FileResult is the extraction output of one file.
// Error is only set when the extractor runs with partial results enabled.
type FileResult struct {
	FileName string `json:"fileName"`
	Pages    Pages  `json:"pages"`
	Error    string `json:"error,omitempty"`
}

// Batch is the ordered result of one drop: one FileResult per file, in drop order.
type Batch []FileResult

// FragmentCount returns the total number of fragments across every file and page.
func (b Batch) FragmentCount() int {
	n := 0
	for _, f := range b {
		for _, p := range f.Pages {
			n += len(p)
		}
	}
	return n
}
