// Package apperrors provides structured packaging errors with exit status mapping.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrValidation  = errors.New("validation error")
	ErrUnknownTask = errors.New("unknown task")
	ErrDelete      = errors.New("delete failed")
	ErrCopy        = errors.New("copy failed")
	ErrArchive     = errors.New("archive failed")
	ErrCancelled   = errors.New("run cancelled")
)

// Error provides structured error with context.
type Error struct {
	Sentinel error  // Wrapped sentinel for errors.Is() classification
	Message  string // Human-readable message
	Field    string // For validation errors (e.g., "exclude[2]")
	Stage    string // Stage that failed (e.g., "thin")
	Op       string // Operation that failed (e.g., "thin.remove")
	Path     string // Path the operation was acting on
	Cause    error  // Underlying filesystem or archive error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause, so callers can
// match on either (errors.Is(err, ErrDelete) or errors.Is(err, fs.ErrPermission)).
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Sentinel}
	}
	return []error{e.Sentinel, e.Cause}
}

// Validation creates a validation error for a specific field.
func Validation(field, message string) error {
	return &Error{
		Sentinel: ErrValidation,
		Message:  message,
		Field:    field,
	}
}

// UnknownTask creates an error for a task name that is not registered.
func UnknownTask(name string) error {
	return &Error{
		Sentinel: ErrUnknownTask,
		Message:  fmt.Sprintf("task %q is not defined", name),
		Field:    "task",
	}
}

// Delete creates a deletion failure for the given stage.
func Delete(stage, path string, cause error) error {
	return stageError(ErrDelete, stage, stage+".remove", path, cause)
}

// Copy creates a copy failure.
func Copy(op, path string, cause error) error {
	return stageError(ErrCopy, "copy", op, path, cause)
}

// Archive creates an archive-write failure.
func Archive(op, path string, cause error) error {
	return stageError(ErrArchive, "compress", op, path, cause)
}

// Cancelled creates an error for a run stopped before the given stage started.
func Cancelled(stage string, cause error) error {
	return &Error{
		Sentinel: ErrCancelled,
		Message:  fmt.Sprintf("run cancelled before %s: %v", stage, cause),
		Stage:    stage,
		Cause:    cause,
	}
}

func stageError(sentinel error, stage, op, path string, cause error) error {
	return &Error{
		Sentinel: sentinel,
		Message:  fmt.Sprintf("%s: %v", op, cause),
		Stage:    stage,
		Op:       op,
		Path:     path,
		Cause:    cause,
	}
}
