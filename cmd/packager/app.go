package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"packager/internal/apperrors"
	"packager/internal/archive"
	"packager/internal/config"
	"packager/internal/notify"
	"packager/internal/observability"
	"packager/internal/pipeline"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/urfave/cli/v2"
)

const (
	// Flags.
	flagRoot        = "root"
	flagOut         = "out"
	flagArchive     = "archive"
	flagExclude     = "exclude"
	flagLevel       = "level"
	flagSkipHidden  = "skip-hidden"
	flagLogLevel    = "log-level"
	flagMetricsFile = "metrics-file"
	flagTimeout     = "timeout"
	flagReport      = "report"
)

// packager carries the state shared by the commands of one invocation. It is
// filled in by the Before hook.
type packager struct {
	stderr io.Writer
	cfg    *config.PackConfig
	root   string
	fsys   billy.Filesystem
	report bool
}

func newApp(stdout, stderr io.Writer) *cli.App {
	defaults := config.LoadPackConfig()
	p := &packager{stderr: stderr}

	var commands []*cli.Command
	for _, task := range pipeline.Tasks() {
		commands = append(commands, &cli.Command{
			Name:         task.Name,
			Usage:        task.Usage,
			OnUsageError: usageError,
			Action: func(c *cli.Context) error {
				if c.Args().Present() {
					return apperrors.UnknownTask(c.Args().First())
				}
				return p.run(c, task.Name)
			},
		})
	}
	commands = append(commands, &cli.Command{
		Name:         "list",
		Usage:        "print the entries of the archive",
		OnUsageError: usageError,
		Action:       p.list,
	})

	return &cli.App{
		Name:            "packager",
		Usage:           "stage, thin and zip a project tree",
		UsageText:       "packager [global options] [task]",
		HideHelpCommand: true,
		Writer:          stdout,
		ErrWriter:       stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagRoot,
				Value: defaults.Root,
				Usage: "project root `DIR`; every other path is relative to it",
			},
			&cli.StringFlag{
				Name:  flagOut,
				Value: defaults.OutputDir,
				Usage: "transient staging directory",
			},
			&cli.StringFlag{
				Name:  flagArchive,
				Value: defaults.Archive,
				Usage: "archive `FILE` written by the compress task",
			},
			&cli.StringSliceFlag{
				Name:  flagExclude,
				Value: cli.NewStringSlice(defaults.Excludes...),
				Usage: "path or glob removed from the staged copy (repeatable)",
			},
			&cli.IntFlag{
				Name:  flagLevel,
				Value: defaults.CompressionLevel,
				Usage: "deflate level, -2 (huffman only) to 9",
			},
			&cli.BoolFlag{
				Name:  flagSkipHidden,
				Value: defaults.SkipHidden,
				Usage: "do not copy dot-prefixed entries",
			},
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: defaults.LogLevel,
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  flagMetricsFile,
				Value: defaults.MetricsFile,
				Usage: "write Prometheus metrics to `FILE` after the run",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Value: defaults.Timeout,
				Usage: "stop the run before its next stage after this long",
			},
			&cli.BoolFlag{
				Name:  flagReport,
				Usage: "print the run report as JSON",
			},
		},
		Before: func(c *cli.Context) error {
			return p.configure(c, defaults)
		},
		Action: func(c *cli.Context) error {
			if c.Args().Present() {
				return apperrors.UnknownTask(c.Args().First())
			}
			return p.run(c, pipeline.DefaultTask)
		},
		Commands:     commands,
		OnUsageError: usageError,
		// Errors are mapped to exit codes by main
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

func usageError(_ *cli.Context, err error, _ bool) error {
	return apperrors.Validation("flags", err.Error())
}

// configure builds the run configuration from the flags. Callback settings
// have no flags and always come from the environment.
func (p *packager) configure(c *cli.Context, defaults *config.PackConfig) error {
	cfg := *defaults
	cfg.Root = c.String(flagRoot)
	cfg.OutputDir = c.String(flagOut)
	cfg.Archive = c.String(flagArchive)
	cfg.Excludes = c.StringSlice(flagExclude)
	cfg.CompressionLevel = c.Int(flagLevel)
	cfg.SkipHidden = c.Bool(flagSkipHidden)
	cfg.LogLevel = c.String(flagLogLevel)
	cfg.MetricsFile = c.String(flagMetricsFile)
	cfg.Timeout = c.Duration(flagTimeout)

	if err := cfg.Validate(); err != nil {
		return err
	}

	info, err := os.Stat(cfg.Root)
	if err != nil {
		return apperrors.Validation(flagRoot, fmt.Sprintf("project root %q: %v", cfg.Root, err))
	}
	if !info.IsDir() {
		return apperrors.Validation(flagRoot, fmt.Sprintf("project root %q is not a directory", cfg.Root))
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return apperrors.Validation(flagRoot, fmt.Sprintf("project root %q: %v", cfg.Root, err))
	}

	slog.SetDefault(slog.New(slog.NewJSONHandler(p.stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	p.cfg = &cfg
	p.root = root
	p.fsys = osfs.New(root)
	p.report = c.Bool(flagReport)
	return nil
}

func (p *packager) run(c *cli.Context, task string) error {
	ctx := c.Context
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	var opts []pipeline.Option
	var metrics *observability.Metrics
	if p.cfg.MetricsFile != "" {
		m, err := observability.NewMetrics(ctx)
		if err != nil {
			return err
		}
		metrics = m
		opts = append(opts, pipeline.WithMetrics(m))
	}
	if p.cfg.CallbackURL != "" {
		hook := notify.NewWebhook(p.cfg, notify.WithMeta(map[string]string{"root": p.root}))
		opts = append(opts, pipeline.WithListener(hook))
	}

	report, err := pipeline.New(p.fsys, p.cfg, opts...).Run(ctx, task)

	// Metrics describe failed runs too
	if metrics != nil {
		if werr := metrics.WriteTextfile(p.cfg.MetricsFile); werr != nil {
			slog.Warn("Failed to write metrics file", "path", p.cfg.MetricsFile, "error", werr)
		}
	}

	if p.report && report != nil {
		encoder := json.NewEncoder(c.App.Writer)
		encoder.SetIndent("", "  ")
		if eerr := encoder.Encode(report); eerr != nil {
			slog.Warn("Failed to print run report", "error", eerr)
		}
	}
	return err
}

func (p *packager) list(c *cli.Context) error {
	if c.Args().Present() {
		return apperrors.UnknownTask(c.Args().First())
	}
	entries, err := archive.List(p.fsys, p.cfg.Archive)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintln(c.App.Writer, e)
	}
	return nil
}
