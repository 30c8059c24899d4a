package mcp

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

func NewMCPServer(ex *extract.Extractor) *mcp.Server {
	service := NewService(ex)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "pdfdrop",
		Version: Version,
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "extract_pdf_text",
		Description: "Extract the positioned text fragments of one or more PDF files. Pages are keyed \"0\", \"1\", ... in page order; fragments keep content-stream order.",
	}, service.ExtractText)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "pdf_page_count",
		Description: "Count the pages of a PDF and report whether it passes validation, without extracting text.",
	}, service.PageCount)

	return s
}

// Serve runs the MCP server over stdin/stdout until ctx is done or the client disconnects.
func Serve(ctx context.Context, ex *extract.Extractor) error {
	slog.Info("[MCP] Serving over stdio")
	return NewMCPServer(ex).Run(ctx, &mcp.StdioTransport{})
}
