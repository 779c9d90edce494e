package apperrors

import "errors"

// Process exit codes.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitInvocation = 2
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownTask):
		return ExitInvocation
	default:
		return ExitFailure
	}
}
