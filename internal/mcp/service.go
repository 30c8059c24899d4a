package mcp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

type Service struct {
	extractor *extract.Extractor
}

func NewService(ex *extract.Extractor) *Service {
	return &Service{extractor: ex}
}

// handle turns a tool input into a FileHandle.
func handle(in FileInput) (extract.FileHandle, error) {
	switch {
	case in.ContentBase64 != "":
		data, err := base64.StdEncoding.DecodeString(in.ContentBase64)
		if err != nil {
			return nil, fmt.Errorf("%w: file %q: invalid base64: %w", extract.ErrRead, in.FileName, err)
		}
		name := in.FileName
		if name == "" {
			name = "document.pdf"
		}
		return extract.BytesHandle{FileName: name, Data: data}, nil
	case in.Path != "":
		if in.FileName != "" {
			return namedPath{name: in.FileName, PathHandle: extract.PathHandle(in.Path)}, nil
		}
		return extract.PathHandle(in.Path), nil
	default:
		return nil, fmt.Errorf("%w: file %q: either path or content_base64 is required", extract.ErrRead, in.FileName)
	}
}

// namedPath reads a path but reports a caller chosen name.
type namedPath struct {
	name string
	extract.PathHandle
}

func (n namedPath) Name() string { return n.name }

// --- Tool Handlers ---

func (s *Service) ExtractText(ctx context.Context, req *mcp.CallToolRequest, args ExtractTextArgs) (*mcp.CallToolResult, ExtractTextResult, error) {
	if len(args.Files) == 0 {
		return nil, ExtractTextResult{}, errors.New("no files given")
	}

	handles := make([]extract.FileHandle, len(args.Files))
	for i, in := range args.Files {
		h, err := handle(in)
		if err != nil {
			return nil, ExtractTextResult{}, err
		}
		handles[i] = h
	}

	ex := s.extractor
	if args.Partial != ex.Options().PartialResults {
		opts := ex.Options()
		opts.PartialResults = args.Partial
		ex = ex.WithOptions(opts)
	}

	batch, err := ex.ExtractFiles(ctx, handles)
	if err != nil {
		slog.Warn("[MCP] extract_pdf_text failed", "files", len(handles), "kind", extract.Kind(err), "error", err)
		return nil, ExtractTextResult{}, err
	}

	out := ExtractTextResult{Files: make([]FileText, len(batch)), Fragments: batch.FragmentCount()}
	for i, fr := range batch {
		pages := make(map[string][]extract.TextFragment, len(fr.Pages))
		for p, frags := range fr.Pages {
			if frags == nil {
				frags = extract.PageFragments{}
			}
			pages[extract.PageKey(p)] = frags
		}
		out.Files[i] = FileText{FileName: fr.FileName, Pages: pages, Error: fr.Error}
	}
	return nil, out, nil
}

func (s *Service) PageCount(ctx context.Context, req *mcp.CallToolRequest, args PageCountArgs) (*mcp.CallToolResult, PageCountResult, error) {
	h, err := handle(args.File)
	if err != nil {
		return nil, PageCountResult{}, err
	}
	file, err := s.extractor.Reader().Read(ctx, h)
	if err != nil {
		return nil, PageCountResult{}, err
	}

	res := PageCountResult{FileName: file.FileName, Valid: true}
	if err := extract.Validate(file.Buffer); err != nil {
		res.Valid = false
		res.Problem = err.Error()
	}
	n, err := extract.CountPages(file.Buffer)
	if err != nil {
		return nil, PageCountResult{}, err
	}
	res.Pages = n
	return nil, res, nil
}
