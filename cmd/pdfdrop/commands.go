package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sanonone/pdfdrop/internal/config"
	"github.com/sanonone/pdfdrop/internal/drop"
	"github.com/sanonone/pdfdrop/internal/logging"
	"github.com/sanonone/pdfdrop/internal/mcp"
	"github.com/sanonone/pdfdrop/internal/server"
	"github.com/sanonone/pdfdrop/pkg/export"
	"github.com/sanonone/pdfdrop/pkg/extract"
)

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "pdfdrop",
		Short:         "Extract positioned text fragments from dropped PDF files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Log.Level = opts.logLevel
			}
			if opts.logFormat != "" {
				cfg.Log.Format = opts.logFormat
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			// stdout carries results (and the MCP protocol), logs always go to stderr
			logging.Setup(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format: text or json")

	root.AddCommand(newServeCmd(opts), newExtractCmd(opts), newMCPCmd(opts))
	return root
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr, token string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the drop page and the extraction API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			if token != "" {
				cfg.AuthToken = token
			}

			srv := server.NewServer(cfg, cfg.NewExtractor())

			shutdownChan := make(chan os.Signal, 1)
			signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

			errChan := make(chan error, 1)
			go func() {
				errChan <- srv.Run()
			}()

			select {
			case err := <-errChan:
				return err
			case <-shutdownChan:
			}

			srv.Shutdown()
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides http_addr)")
	cmd.Flags().StringVar(&token, "token", "", "bearer token required on /api routes (overrides auth_token)")
	return cmd
}

func newExtractCmd(opts *rootOptions) *cobra.Command {
	var format string
	var partial bool

	cmd := &cobra.Command{
		Use:   "extract <file.pdf>...",
		Short: "Extract the text fragments of local PDF files and print them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unknown format %q, want json or csv", format)
			}
			cfg := opts.cfg
			if cmd.Flags().Changed("partial") {
				cfg.Extraction.PartialResults = partial
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if cfg.Extraction.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, cfg.Extraction.Timeout)
				defer cancel()
			}

			handles := make([]extract.FileHandle, len(args))
			for i, p := range args {
				handles[i] = extract.PathHandle(p)
			}

			sink := &writerSink{w: cmd.OutOrStdout(), format: format}
			return drop.NewController(cfg.NewExtractor(), sink).FilesDropped(ctx, handles)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or csv")
	cmd.Flags().BoolVar(&partial, "partial", false, "report broken files per file instead of failing")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the extraction tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return mcp.Serve(ctx, opts.cfg.NewExtractor())
		},
	}
}

// writerSink prints a delivered batch.
type writerSink struct {
	w      io.Writer
	format string
}

func (s *writerSink) PDFsLoaded(_ context.Context, batch extract.Batch) error {
	slog.Debug("Batch loaded", "files", len(batch), "fragments", batch.FragmentCount())
	if s.format == "csv" {
		return export.WriteBatchCSV(s.w, batch)
	}
	enc := json.NewEncoder(s.w)
	enc.SetIndent("", "  ")
	return enc.Encode(batch)
}
