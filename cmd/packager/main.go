// packager stages a project tree, strips development files and zips the
// result into a single distributable archive.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"packager/internal/apperrors"
	"syscall"
)

func main() {
	// Replaced in Before once the log level is known
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(os.Args); err != nil {
		slog.Error("Packaging failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}

func run(args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals; the run stops before its next stage
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		cancel()
	}()

	return newApp(os.Stdout, os.Stderr).RunContext(ctx, args)
}
