package errors

import (
	"fmt"
	"strings"
)

// Diagnostic is one entry in a Sink: a message plus the source line it
// refers to when one is known.
type Diagnostic struct {
	Message string
	Line    int // 1-based, 0 when unavailable
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%d: %s", d.Line, d.Message)
	}
	return d.Message
}

// Sink accumulates diagnostics across boundary calls. The caller owns the
// sink and its storage; callees only ever append, never reset or reorder,
// so entries from successive calls pile up in call order. The zero value is
// ready to use. A Sink is not safe for concurrent use.
type Sink struct {
	entries []Diagnostic
}

// Append adds one diagnostic.
func (s *Sink) Append(d Diagnostic) {
	s.entries = append(s.entries, d)
}

// Appendf adds a formatted diagnostic at the given line.
func (s *Sink) Appendf(line int, format string, args ...any) {
	s.entries = append(s.entries, Diagnostic{
		Message: fmt.Sprintf(format, args...),
		Line:    line,
	})
}

// AppendError flattens err into a diagnostic, lifting the source line when
// err is a structured *Error carrying one.
func (s *Sink) AppendError(err error) {
	if err == nil {
		return
	}
	d := Diagnostic{Message: err.Error()}
	if e, ok := err.(*Error); ok {
		d.Line = e.Line
	}
	s.entries = append(s.entries, d)
}

// Len returns the number of accumulated diagnostics.
func (s *Sink) Len() int {
	return len(s.entries)
}

// Empty reports whether nothing has been appended.
func (s *Sink) Empty() bool {
	return len(s.entries) == 0
}

// At returns the i-th diagnostic in append order.
func (s *Sink) At(i int) Diagnostic {
	return s.entries[i]
}

// Entries returns the accumulated diagnostics in append order. The returned
// slice is the sink's backing storage; callers must not mutate it.
func (s *Sink) Entries() []Diagnostic {
	return s.entries
}

// Messages returns just the message text of every diagnostic.
func (s *Sink) Messages() []string {
	out := make([]string, len(s.entries))
	for i, d := range s.entries {
		out[i] = d.Message
	}
	return out
}

func (s *Sink) String() string {
	var b strings.Builder
	for i, d := range s.entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(d.String())
	}
	return b.String()
}
