package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
)

// ExitError carries a nonzero exit status out of a command.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode extracts the exit status from an error returned by a command:
// 0 for nil, the carried code for an ExitError, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

// Silent reports whether err was already reported to the user.
func Silent(err error) bool {
	var exitErr *ExitError
	return stderrors.As(err, &exitErr) && exitErr.Err == nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
