package extract

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_SingleRun(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("one", fakePage{runs: []TextRun{run("Total", 72.5, 640.25, 31.2, 11)}})

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{f})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, "one.pdf", batch[0].FileName)

	frags, ok := batch[0].Pages.Page("0")
	require.True(t, ok)
	assert.Equal(t, PageFragments{{Text: "Total", X: 72.5, Y: 640.25, Width: 31.2, Height: 11}}, frags)
}

func TestExtract_PreservesFileOrder(t *testing.T) {
	dec := newFakeDecoder()
	// The first file is the slowest, the last one the fastest.
	files := []RawFile{
		dec.add("a", page(60*time.Millisecond, "A")),
		dec.add("b", page(30*time.Millisecond, "B")),
		dec.add("c", page(0, "C")),
	}
	dec.openDelay["a"] = 20 * time.Millisecond

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, batch, 3)
	for i, want := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		assert.Equal(t, want, batch[i].FileName)
	}
	assert.Equal(t, "A", batch[0].Pages[0][0].Text)
	assert.Equal(t, "C", batch[2].Pages[0][0].Text)
}

func TestExtract_PageKeysFollowPageOrder(t *testing.T) {
	dec := newFakeDecoder()
	// Later pages complete first.
	f := dec.add("three",
		page(40*time.Millisecond, "first"),
		page(20*time.Millisecond, "second"),
		page(0, "third"),
	)

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{f})
	require.NoError(t, err)
	pages := batch[0].Pages
	assert.Equal(t, []string{"0", "1", "2"}, pages.Keys())
	for key, want := range map[string]string{"0": "first", "1": "second", "2": "third"} {
		frags, ok := pages.Page(key)
		require.True(t, ok, key)
		assert.Equal(t, want, frags[0].Text)
	}
}

func TestExtract_FragmentOrder(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("abc", page(0, "A", "B", "C"))

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{f})
	require.NoError(t, err)
	var got []string
	for _, fr := range batch[0].Pages[0] {
		got = append(got, fr.Text)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func TestExtract_AllOrNothing(t *testing.T) {
	dec := newFakeDecoder()
	files := []RawFile{
		dec.add("one", page(10*time.Millisecond, "1")),
		dec.add("two", page(0, "2")),
		dec.add("three", page(10*time.Millisecond, "3")),
	}
	dec.openErr["two"] = fmt.Errorf("%w: bad header", ErrDecode)

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), files)
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Equal(t, KindDecode, Kind(err))

	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 1, fe.Index)
	assert.Equal(t, "two.pdf", fe.FileName)
	assert.Zero(t, fe.Page)
}

func TestExtract_PageFailureFailsDocument(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("doc",
		page(0, "ok"),
		fakePage{err: fmt.Errorf("%w: bad content stream", ErrDecode)},
		page(20*time.Millisecond, "ok too"),
	)

	_, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{f})
	require.Error(t, err)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Page)
	assert.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "page 2")
}

func TestExtract_UnclassifiedErrorsBecomeUnknownIO(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("doc", fakePage{err: errBroken})

	_, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{f})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownIO)
	assert.ErrorIs(t, err, errBroken)
	assert.Equal(t, KindIO, Kind(err))
}

func TestExtract_PartialResults(t *testing.T) {
	dec := newFakeDecoder()
	files := []RawFile{
		dec.add("one", page(0, "1")),
		dec.add("two", page(0, "2")),
		dec.add("three", page(0, "3")),
	}
	dec.openErr["two"] = fmt.Errorf("%w: truncated", ErrDecode)

	batch, err := NewExtractor(dec, nil, Options{PartialResults: true}).Extract(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	assert.Empty(t, batch[0].Error)
	assert.Equal(t, "1", batch[0].Pages[0][0].Text)
	assert.Equal(t, "two.pdf", batch[1].FileName)
	assert.Contains(t, batch[1].Error, "truncated")
	assert.Empty(t, batch[1].Pages)
	assert.Equal(t, "3", batch[2].Pages[0][0].Text)
}

func TestExtract_Cancellation(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("slow", page(5*time.Second, "never"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewExtractor(dec, nil, Options{}).Extract(ctx, []RawFile{f})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, KindCanceled, Kind(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExtract_PartialResultsStillFailOnCancel(t *testing.T) {
	dec := newFakeDecoder()
	f := dec.add("slow", page(5*time.Second, "never"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExtractor(dec, nil, Options{PartialResults: true}).Extract(ctx, []RawFile{f})
	require.ErrorIs(t, err, context.Canceled)
}

func TestExtract_MaxFiles(t *testing.T) {
	dec := newFakeDecoder()
	files := []RawFile{dec.add("a", page(0, "a")), dec.add("b", page(0, "b"))}

	_, err := NewExtractor(dec, nil, Options{MaxFiles: 1}).Extract(context.Background(), files)
	require.ErrorIs(t, err, ErrLimitExceeded)
	assert.Empty(t, dec.opened, "nothing is decoded when the batch is rejected")
}

func TestExtract_ConcurrentDocumentLimit(t *testing.T) {
	dec := newFakeDecoder()
	var files []RawFile
	for i := 0; i < 8; i++ {
		name := fmt.Sprintf("doc%d", i)
		files = append(files, dec.add(name, page(0, name)))
		dec.openDelay[name] = 15 * time.Millisecond
	}

	batch, err := NewExtractor(dec, nil, Options{MaxConcurrentDocuments: 2}).Extract(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, batch, 8)
	assert.LessOrEqual(t, dec.opens.max.Load(), int32(2))
}

func TestExtract_ConcurrentPageLimit(t *testing.T) {
	dec := newFakeDecoder()
	var fetches peak
	pages := make([]fakePage, 20)
	for i := range pages {
		pages[i] = page(10*time.Millisecond, fmt.Sprintf("p%d", i))
		pages[i].fetches = &fetches
	}
	files := []RawFile{dec.add("long", pages...), dec.add("other", pages[:5]...)}

	batch, err := NewExtractor(dec, nil, Options{MaxConcurrentPages: 3, MaxConcurrentDocuments: 1}).
		Extract(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, batch[0].Pages, 20)
	assert.Equal(t, "p19", batch[0].Pages[19][0].Text)
	assert.LessOrEqual(t, fetches.max.Load(), int32(3))
	assert.Greater(t, fetches.max.Load(), int32(1), "pages of one document run concurrently")
}

func TestExtract_EmptyInputs(t *testing.T) {
	dec := newFakeDecoder()
	empty := dec.add("empty")

	batch, err := NewExtractor(dec, nil, Options{}).Extract(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, batch)

	batch, err = NewExtractor(dec, nil, Options{}).Extract(context.Background(), []RawFile{empty})
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Empty(t, batch[0].Pages)
}

func TestExtract_ConcurrencyStress(t *testing.T) {
	dec := newFakeDecoder()
	rng := rand.New(rand.NewSource(7))

	const nFiles = 40
	var files []RawFile
	want := make(map[string][][]string)
	for i := 0; i < nFiles; i++ {
		name := fmt.Sprintf("f%02d", i)
		nPages := 1 + rng.Intn(6)
		var pages []fakePage
		for p := 0; p < nPages; p++ {
			texts := []string{
				fmt.Sprintf("%s-p%d-a", name, p),
				fmt.Sprintf("%s-p%d-b", name, p),
			}
			pages = append(pages, page(time.Duration(rng.Intn(8))*time.Millisecond, texts...))
			want[name+".pdf"] = append(want[name+".pdf"], texts)
		}
		files = append(files, dec.add(name, pages...))
	}

	ex := NewExtractor(dec, nil, Options{MaxConcurrentDocuments: 8, MaxConcurrentPages: 3})
	batch, err := ex.Extract(context.Background(), files)
	require.NoError(t, err)
	require.Len(t, batch, nFiles)

	for i, fr := range batch {
		assert.Equal(t, files[i].FileName, fr.FileName)
		wantPages := want[fr.FileName]
		require.Len(t, fr.Pages, len(wantPages))
		for p, frags := range fr.Pages {
			var got []string
			for _, f := range frags {
				got = append(got, f.Text)
			}
			assert.Equal(t, wantPages[p], got, "%s page %d", fr.FileName, p)
		}
	}
}

func TestExtractFiles(t *testing.T) {
	dec := newFakeDecoder()
	dec.add("alpha", page(0, "x"))
	dec.add("beta", page(0, "y"))

	ex := NewExtractor(dec, NewFileReader(0), Options{})
	batch, err := ex.ExtractFiles(context.Background(), []FileHandle{
		BytesHandle{FileName: "Bank Statement (März).pdf", Data: []byte("alpha")},
		BytesHandle{FileName: "b.PDF", Data: []byte("beta")},
	})
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "Bank Statement (März).pdf", batch[0].FileName)
	assert.Equal(t, "y", batch[1].Pages[0][0].Text)
}

func TestExtractFiles_ReadFailureFailsBatch(t *testing.T) {
	dec := newFakeDecoder()
	dec.add("alpha", page(0, "x"))

	ex := NewExtractor(dec, nil, Options{})
	batch, err := ex.ExtractFiles(context.Background(), []FileHandle{
		BytesHandle{FileName: "a.pdf", Data: []byte("alpha")},
		failingHandle("gone.pdf"),
	})
	require.Error(t, err)
	assert.Nil(t, batch)
	assert.ErrorIs(t, err, ErrRead)
	assert.Equal(t, KindRead, Kind(err))
	assert.Empty(t, dec.opened)
}
