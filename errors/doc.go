// Package errors provides structured error types for vmwire.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the descriptor path, the instance involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConfig, errors.KindNotFound).
//		Path("edges", "2", "to").
//		Instance(7).
//		Detail("no instance %d", 7).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Capacity(errors.PhaseConfig, 17, 16)
//	err := errors.OutOfBounds(errors.PhaseRuntime, path, 70000, 65536)
//
// All errors implement the standard error interface and support errors.Is/As.
// Two *Error values match under errors.Is when their Phase and Kind agree.
package errors
