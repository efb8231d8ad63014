package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse   Phase = "parse"   // text format tokenizing/parsing
	PhaseResolve Phase = "resolve" // name resolution
	PhaseEncode  Phase = "encode"  // binary writing
	PhaseLoad    Phase = "load"    // binary reading and instantiation
	PhaseRuntime Phase = "runtime" // export invocation
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData       Kind = "invalid_data"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindUnsupported       Kind = "unsupported"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindDuplicateName     Kind = "duplicate_name"
	KindUnresolvedName    Kind = "unresolved_name"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindTrap              Kind = "trap"
	KindInstantiation     Kind = "instantiation"
	KindInvalidHandle     Kind = "invalid_handle"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Name   string // symbol, export, or module name involved
	Detail string
	Line   int // 1-based source line, 0 when unavailable
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Line > 0 {
		fmt.Fprintf(&b, " at line %d", e.Line)
	}

	if e.Name != "" {
		b.WriteString(": ")
		b.WriteString(e.Name)
	}

	if e.Detail != "" {
		if e.Name != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Name sets the symbol, export, or module name involved
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Line sets the source line
func (b *Builder) Line(line int) *Builder {
	b.err.Line = line
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

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s not found", what),
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

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// Duplicate creates a duplicate name declaration error
func Duplicate(phase Phase, name string, line int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicateName,
		Name:   name,
		Line:   line,
		Detail: "redefinition of name",
	}
}

// Unresolved creates an unresolved symbolic reference error
func Unresolved(phase Phase, name string, line int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnresolvedName,
		Name:   name,
		Line:   line,
		Detail: "undefined symbol",
	}
}

// SignatureMismatch creates a signature mismatch error for an export call
func SignatureMismatch(name, detail string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindSignatureMismatch,
		Name:   name,
		Detail: detail,
	}
}

// Trap creates a trap error for a failed export call
func Trap(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Name:   name,
		Detail: "trap during execution",
		Cause:  cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
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

// InvalidHandle creates an invalid handle error
func InvalidHandle(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("invalid %s handle", what),
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
