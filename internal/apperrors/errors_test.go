package apperrors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestValidation(t *testing.T) {
	t.Parallel()
	err := Validation("out", "output directory is required")

	if !errors.Is(err, ErrValidation) {
		t.Error("expected error to match ErrValidation")
	}
	if err.Error() != "output directory is required" {
		t.Errorf("expected message 'output directory is required', got %q", err.Error())
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Field != "out" {
		t.Errorf("expected field 'out', got %q", appErr.Field)
	}
}

func TestUnknownTask(t *testing.T) {
	t.Parallel()
	err := UnknownTask("publish")

	if !errors.Is(err, ErrUnknownTask) {
		t.Error("expected error to match ErrUnknownTask")
	}
	if err.Error() != `task "publish" is not defined` {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	cause := &fs.PathError{Op: "remove", Path: "build/update.sh", Err: fs.ErrPermission}
	err := Delete("thin", "build/update.sh", cause)

	if !errors.Is(err, ErrDelete) {
		t.Error("expected error to match ErrDelete")
	}
	if !errors.Is(err, fs.ErrPermission) {
		t.Error("expected error to match the underlying fs.ErrPermission")
	}

	var appErr *Error
	if !errors.As(err, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Stage != "thin" {
		t.Errorf("expected stage 'thin', got %q", appErr.Stage)
	}
	if appErr.Op != "thin.remove" {
		t.Errorf("expected op 'thin.remove', got %q", appErr.Op)
	}
	if appErr.Path != "build/update.sh" {
		t.Errorf("expected path 'build/update.sh', got %q", appErr.Path)
	}
	if err.Error() != "thin.remove: remove build/update.sh: permission denied" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestCopyAndArchive(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("no space left on device")

	copyErr := Copy("copy.file", "build/src/a.cpp", cause)
	if !errors.Is(copyErr, ErrCopy) {
		t.Error("expected error to match ErrCopy")
	}
	if errors.Is(copyErr, ErrArchive) {
		t.Error("copy error must not match ErrArchive")
	}

	archiveErr := Archive("compress.entry", "src/a.cpp", cause)
	if !errors.Is(archiveErr, ErrArchive) {
		t.Error("expected error to match ErrArchive")
	}

	var appErr *Error
	if !errors.As(archiveErr, &appErr) {
		t.Fatal("expected error to be *Error")
	}
	if appErr.Stage != "compress" {
		t.Errorf("expected stage 'compress', got %q", appErr.Stage)
	}
	if appErr.Cause != cause {
		t.Error("expected cause to be preserved")
	}
}

func TestCancelled(t *testing.T) {
	t.Parallel()
	err := Cancelled("copy", context.Canceled)

	if !errors.Is(err, ErrCancelled) {
		t.Error("expected error to match ErrCancelled")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("expected error to match context.Canceled")
	}
}

func TestExitCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, ExitOK},
		{"validation", Validation("out", "required"), ExitInvocation},
		{"unknown task", UnknownTask("deploy"), ExitInvocation},
		{"delete", Delete("clean", "build", fs.ErrPermission), ExitFailure},
		{"copy", Copy("copy.file", "a", fs.ErrNotExist), ExitFailure},
		{"archive", Archive("compress.create", "mqtt.zip", fs.ErrClosed), ExitFailure},
		{"cancelled", Cancelled("thin", context.Canceled), ExitFailure},
		{"wrapped validation", fmt.Errorf("wrap: %w", Validation("f", "m")), ExitInvocation},
		{"unknown error", fmt.Errorf("unknown"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ExitCode(tt.err)
			if got != tt.expected {
				t.Errorf("ExitCode() = %d, want %d", got, tt.expected)
			}
		})
	}
}

func TestErrorsIsWithWrapping(t *testing.T) {
	t.Parallel()
	original := Delete("clean", "build", fs.ErrPermission)
	wrapped := fmt.Errorf("stage error: %w", original)
	doubleWrapped := fmt.Errorf("run error: %w", wrapped)

	if !errors.Is(doubleWrapped, ErrDelete) {
		t.Error("expected errors.Is to find ErrDelete through multiple wraps")
	}
	if !errors.Is(doubleWrapped, fs.ErrPermission) {
		t.Error("expected errors.Is to find the cause through multiple wraps")
	}
}
