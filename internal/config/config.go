// Package config provides packaging configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"packager/internal/apperrors"
	"packager/internal/archive"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
)

// Default layout of a packaging run, relative to the project root.
const (
	DefaultOutputDir = "build"
	DefaultArchive   = "mqtt.zip"
)

// DefaultExcludes are the development-only paths stripped from the staged copy:
// build/update script, task-runner config, package metadata, dependency cache,
// the prior archive, native build config and the bridge subdirectory.
var DefaultExcludes = []string{
	"update.sh",
	"Gulpfile.js",
	"package.json",
	"node_modules",
	DefaultArchive,
	"CMakeLists.txt",
	"yun",
}

// PackConfig holds configuration for a packaging run.
type PackConfig struct {
	Root             string        // Project root; every other path is relative to it
	OutputDir        string        // Transient staging directory
	Archive          string        // Archive path written by the compress stage
	Excludes         []string      // Paths relative to OutputDir removed by the thin stage
	CompressionLevel int           // Deflate level (-2..9, -1 for the library default)
	SkipHidden       bool          // Skip dot-prefixed entries when copying
	LogLevel         string        // debug, info, warn or error
	MetricsFile      string        // Prometheus textfile written after the run
	CallbackURL      string        // Stage events are POSTed here when set
	CallbackKey      string        // HMAC key for signing stage events
	CallbackTimeout  time.Duration // Per-attempt delivery timeout
	CallbackRetries  int           // Retries for server errors and transport failures
	CallbackEvents   []string      // Event types to send, empty for all
	Timeout          time.Duration // Bounds the run between stages (0 for none)
}

// LoadPackConfig loads packaging configuration from environment variables.
func LoadPackConfig() *PackConfig {
	return &PackConfig{
		Root:             GetEnv("PACK_ROOT", "."),
		OutputDir:        GetEnv("PACK_OUTPUT_DIR", DefaultOutputDir),
		Archive:          GetEnv("PACK_ARCHIVE", DefaultArchive),
		Excludes:         GetListEnv("PACK_EXCLUDE", slices.Clone(DefaultExcludes)),
		CompressionLevel: GetIntEnv("PACK_COMPRESSION_LEVEL", flate.DefaultCompression),
		SkipHidden:       GetBoolEnv("PACK_SKIP_HIDDEN", false),
		LogLevel:         GetEnv("PACK_LOG_LEVEL", "info"),
		MetricsFile:      GetEnv("PACK_METRICS_FILE", ""),
		CallbackURL:      GetEnv("PACK_CALLBACK_URL", ""),
		CallbackKey:      GetSecretFile(GetEnv("PACK_CALLBACK_KEY_FILE", "")),
		CallbackTimeout:  GetDurationEnv("PACK_CALLBACK_TIMEOUT", 10*time.Second),
		CallbackRetries:  GetIntEnv("PACK_CALLBACK_RETRIES", 2),
		CallbackEvents:   GetListEnv("PACK_CALLBACK_EVENTS", nil),
		Timeout:          GetDurationEnv("PACK_TIMEOUT", 0),
	}
}

// EffectiveExcludes returns the exclusion list with the configured archive
// path and the glob of its staging files appended, so neither a prior
// archive nor one left half-written by an interrupted run ends up inside the
// new one.
func (c *PackConfig) EffectiveExcludes() []string {
	excludes := slices.Clone(c.Excludes)
	for _, extra := range []string{filepath.Clean(c.Archive), archive.TempPattern(c.Archive)} {
		listed := slices.ContainsFunc(excludes, func(e string) bool {
			return filepath.Clean(e) == extra
		})
		if !listed {
			excludes = append(excludes, extra)
		}
	}
	return excludes
}

// SlogLevel returns the configured log level, falling back to info.
func (c *PackConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the configuration before any stage runs.
func (c *PackConfig) Validate() error {
	if c.Root == "" {
		return apperrors.Validation("root", "root is required")
	}

	if c.OutputDir == "" {
		return apperrors.Validation("out", "output directory is required")
	}
	if err := validatePath(c.OutputDir); err != nil {
		return apperrors.Validation("out", fmt.Sprintf("invalid output directory: %v", err))
	}
	if filepath.Clean(c.OutputDir) == "." {
		return apperrors.Validation("out", "output directory must not be the project root")
	}

	if c.Archive == "" {
		return apperrors.Validation("archive", "archive path is required")
	}
	if err := validatePath(c.Archive); err != nil {
		return apperrors.Validation("archive", fmt.Sprintf("invalid archive path: %v", err))
	}
	if isWithin(c.Archive, c.OutputDir) {
		return apperrors.Validation("archive", "archive must not be written inside the output directory")
	}

	for i, e := range c.Excludes {
		field := fmt.Sprintf("exclude[%d]", i)
		if e == "" {
			return apperrors.Validation(field, fmt.Sprintf("exclude[%d]: path is required", i))
		}
		if err := validatePath(e); err != nil {
			return apperrors.Validation(field, fmt.Sprintf("exclude[%d]: invalid path: %v", i, err))
		}
		if filepath.Clean(e) == "." {
			return apperrors.Validation(field, fmt.Sprintf("exclude[%d]: must not exclude the whole output directory", i))
		}
		if _, err := filepath.Match(e, ""); err != nil {
			return apperrors.Validation(field, fmt.Sprintf("exclude[%d]: invalid pattern: %v", i, err))
		}
	}

	if c.CompressionLevel < flate.HuffmanOnly || c.CompressionLevel > flate.BestCompression {
		return apperrors.Validation("level", fmt.Sprintf("compression level must be between %d and %d, got %d",
			flate.HuffmanOnly, flate.BestCompression, c.CompressionLevel))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return apperrors.Validation("log-level", fmt.Sprintf("unknown log level %q", c.LogLevel))
	}

	if c.CallbackURL != "" {
		u, err := url.Parse(c.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Validation("callback-url", fmt.Sprintf("invalid callback URL %q", c.CallbackURL))
		}
	}
	if c.CallbackRetries < 0 {
		return apperrors.Validation("callback-retries", "callback retries must not be negative")
	}

	return nil
}

func validatePath(path string) error {
	if filepath.IsAbs(path) {
		return fmt.Errorf("path must be relative, not absolute")
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return fmt.Errorf("path traversal not allowed")
	}

	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal not allowed")
		}
	}

	return nil
}

// isWithin reports whether path equals dir or lies beneath it.
func isWithin(path, dir string) bool {
	path, dir = filepath.Clean(path), filepath.Clean(dir)
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}
