// Package config loads the pdfdrop configuration.
//
// Values come from DefaultConfig, then an optional YAML file (environment variables in
// the file are expanded, unknown fields are rejected), then PDFDROP_* environment
// variables. Command line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sanonone/pdfdrop/pkg/extract"
)

// Config is the top-level configuration.
type Config struct {
	HTTPAddr   string           `yaml:"http_addr"`
	AuthToken  string           `yaml:"auth_token"`
	CORSOrigin string           `yaml:"cors_origin"`
	Log        LogConfig        `yaml:"log"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Tasks      TaskConfig       `yaml:"tasks"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// ExtractionConfig bounds the extraction pipeline. Zero limits mean unlimited.
type ExtractionConfig struct {
	MaxConcurrentDocuments int           `yaml:"max_concurrent_documents"`
	MaxConcurrentPages     int           `yaml:"max_concurrent_pages"`
	MaxFiles               int           `yaml:"max_files"`
	MaxFileBytes           int64         `yaml:"max_file_bytes"`
	PartialResults         bool          `yaml:"partial_results"`
	StrictValidation       bool          `yaml:"strict_validation"`
	Timeout                time.Duration `yaml:"timeout"`
}

type TaskConfig struct {
	MaxRetained int `yaml:"max_retained"`
}

// DefaultConfig returns a working configuration for a local instance.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:   ":8000",
		CORSOrigin: "*",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Extraction: ExtractionConfig{
			MaxConcurrentDocuments: 4,
			MaxConcurrentPages:     8,
			MaxFiles:               50,
			MaxFileBytes:           50 << 20,
			Timeout:                2 * time.Minute,
		},
		Tasks: TaskConfig{
			MaxRetained: 100,
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("could not read configuration file '%s': %w", path, err)
		}

		decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides cfg with PDFDROP_* variables.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("PDFDROP_HTTP_ADDR", &cfg.HTTPAddr)
	str("PDFDROP_AUTH_TOKEN", &cfg.AuthToken)
	str("PDFDROP_CORS_ORIGIN", &cfg.CORSOrigin)
	str("PDFDROP_LOG_LEVEL", &cfg.Log.Level)
	str("PDFDROP_LOG_FORMAT", &cfg.Log.Format)

	// PORT (as set by most PaaS runtimes) wins over PDFDROP_HTTP_ADDR.
	if v, ok := lookup("PORT"); ok && v != "" {
		if _, err := strconv.Atoi(v); err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.HTTPAddr = ":" + v
	}

	if v, ok := lookup("PDFDROP_PARTIAL_RESULTS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PDFDROP_PARTIAL_RESULTS %q: %w", v, err)
		}
		cfg.Extraction.PartialResults = b
	}
	if v, ok := lookup("PDFDROP_MAX_CONCURRENT_DOCUMENTS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PDFDROP_MAX_CONCURRENT_DOCUMENTS %q: %w", v, err)
		}
		cfg.Extraction.MaxConcurrentDocuments = n
	}
	return nil
}

// Validate rejects values no component can work with.
func (c Config) Validate() error {
	e := c.Extraction
	switch {
	case e.MaxConcurrentDocuments < 0, e.MaxConcurrentPages < 0, e.MaxFiles < 0, e.MaxFileBytes < 0:
		return fmt.Errorf("extraction limits must not be negative")
	case e.Timeout < 0:
		return fmt.Errorf("extraction timeout must not be negative")
	case c.Tasks.MaxRetained < 0:
		return fmt.Errorf("tasks.max_retained must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ExtractOptions converts the extraction section into extractor options.
func (c Config) ExtractOptions() extract.Options {
	return extract.Options{
		MaxConcurrentDocuments: c.Extraction.MaxConcurrentDocuments,
		MaxConcurrentPages:     c.Extraction.MaxConcurrentPages,
		MaxFiles:               c.Extraction.MaxFiles,
		PartialResults:         c.Extraction.PartialResults,
	}
}

// NewExtractor builds the extractor described by the configuration.
func (c Config) NewExtractor() *extract.Extractor {
	return extract.NewExtractor(
		extract.NewPDFDecoder(c.Extraction.StrictValidation),
		extract.NewFileReader(c.Extraction.MaxFileBytes),
		c.ExtractOptions(),
	)
}
