package mcp

import "github.com/sanonone/pdfdrop/pkg/extract"

// --- Tool Arguments ---

// FileInput names one document either by local path or by inline base64 content.
type FileInput struct {
	FileName      string `json:"file_name,omitempty" jsonschema:"Display name reported back for this file. Defaults to the base name of path"`
	Path          string `json:"path,omitempty" jsonschema:"Local path of the PDF. Either path or content_base64 must be set"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"The PDF bytes, base64 encoded"`
}

type ExtractTextArgs struct {
	Files   []FileInput `json:"files" jsonschema:"The PDF files to extract, in order. Results keep this order"`
	Partial bool        `json:"partial,omitempty" jsonschema:"If true, a broken file is reported in its error field instead of failing the call"`
}

type PageCountArgs struct {
	File FileInput `json:"file" jsonschema:"The PDF to inspect"`
}

// --- Tool Results ---

// FileText mirrors extract.FileResult with pages as a plain map, so the
// output schema inferred from it matches what is sent on the wire.
type FileText struct {
	FileName string                            `json:"fileName"`
	Pages    map[string][]extract.TextFragment `json:"pages"`
	Error    string                            `json:"error,omitempty"`
}

type ExtractTextResult struct {
	Files     []FileText `json:"files"`
	Fragments int        `json:"fragments"`
}

type PageCountResult struct {
	FileName string `json:"fileName"`
	Pages    int    `json:"pages"`
	Valid    bool   `json:"valid"`
	Problem  string `json:"problem,omitempty"`
}
