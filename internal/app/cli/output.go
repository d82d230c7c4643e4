package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dalemusser/agentcanvas/internal/domain/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // sync ran with no per-record errors
	ExitFailure      = 1 // sync ran but some records failed, or the fetch failed
	ExitCommandError = 2 // bad flags, database unreachable
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// writeResult prints res as indented JSON and turns per-record errors into
// an ExitFailure.
func writeResult(w io.Writer, res models.SyncResult) error {
	if res.Errors == nil {
		res.Errors = []string{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return WrapExitError(ExitCommandError, "write result", err)
	}
	if len(res.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d membership(s) failed to sync", len(res.Errors)))
	}
	return nil
}
