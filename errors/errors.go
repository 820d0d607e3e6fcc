package errors

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseConfig   Phase = "config"   // wiring descriptor validation
	PhaseParse    Phase = "parse"    // wiring file decoding
	PhaseLoad     Phase = "load"     // program image loading
	PhaseBoot     Phase = "boot"     // initial evaluation
	PhaseRoute    Phase = "route"    // cross-instance propagation
	PhaseEval     Phase = "eval"     // program evaluation
	PhaseRuntime  Phase = "runtime"  // host operations
	PhaseTrace    Phase = "trace"    // trace recording
	PhaseSnapshot Phase = "snapshot" // snapshot encoding
)

// Kind categorizes the error
type Kind string

const (
	KindCapacity       Kind = "capacity"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindInvalidData    Kind = "invalid_data"
	KindInvalidInput   Kind = "invalid_input"
	KindNotFound       Kind = "not_found"
	KindDuplicate      Kind = "duplicate"
	KindUnsupported    Kind = "unsupported"
	KindNotInitialized Kind = "not_initialized"
	KindRecursion      Kind = "recursion"
	KindFault          Kind = "fault"
	KindIO             Kind = "io"
)

// Error is the structured error type used throughout vmwire
type Error struct {
	Value    any
	Cause    error
	Instance *int
	Phase    Phase
	Kind     Kind
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Instance != nil {
		b.WriteString(" (instance ")
		b.WriteString(strconv.Itoa(*e.Instance))
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the descriptor path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Instance sets the instance the error concerns
func (b *Builder) Instance(id int) *Builder {
	b.err.Instance = &id
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Capacity creates an error for a count that exceeds a fixed maximum
func Capacity(phase Phase, count, limit int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCapacity,
		Detail: fmt.Sprintf("%d exceeds capacity %d", count, limit),
		Value:  count,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Recursion creates an error for an evaluation nested deeper than limit
func Recursion(instance, depth, limit int) *Error {
	return &Error{
		Phase:    PhaseRoute,
		Kind:     KindRecursion,
		Instance: &instance,
		Detail:   fmt.Sprintf("evaluation depth %d exceeds limit %d", depth, limit),
		Value:    depth,
	}
}

// Fault creates an error for a program that trapped during evaluation
func Fault(instance int, vector uint16, cause error) *Error {
	return &Error{
		Phase:    PhaseEval,
		Kind:     KindFault,
		Instance: &instance,
		Detail:   fmt.Sprintf("fault at vector %#04x", vector),
		Value:    vector,
		Cause:    cause,
	}
}

// Load creates a program loading error
func Load(instance int, ref string, cause error) *Error {
	return &Error{
		Phase:    PhaseLoad,
		Kind:     KindInvalidData,
		Instance: &instance,
		Detail:   fmt.Sprintf("load %s", ref),
		Cause:    cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
