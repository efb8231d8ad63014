package errors

import (
	"strings"
	"testing"
)

func TestSinkAppendOrder(t *testing.T) {
	var s Sink
	if !s.Empty() {
		t.Fatal("zero sink should be empty")
	}

	s.Appendf(3, "first: %s", "$a")
	s.Append(Diagnostic{Message: "second"})
	s.Appendf(0, "third")

	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	if s.At(0).Message != "first: $a" || s.At(0).Line != 3 {
		t.Fatalf("At(0) = %+v", s.At(0))
	}
	if s.At(1).Message != "second" {
		t.Fatalf("At(1) = %+v", s.At(1))
	}

	msgs := s.Messages()
	if len(msgs) != 3 || msgs[2] != "third" {
		t.Fatalf("Messages = %v", msgs)
	}
}

func TestSinkAppendError(t *testing.T) {
	var s Sink
	s.AppendError(nil)
	if !s.Empty() {
		t.Fatal("AppendError(nil) appended an entry")
	}

	s.AppendError(Unresolved(PhaseResolve, "$b", 5))
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
	d := s.At(0)
	if d.Line != 5 {
		t.Fatalf("Line = %d, want 5 (lifted from structured error)", d.Line)
	}
	if !strings.Contains(d.Message, "$b") {
		t.Fatalf("message %q does not mention the symbol", d.Message)
	}
}

func TestSinkString(t *testing.T) {
	var s Sink
	s.Appendf(2, "unknown identifier")
	s.Appendf(0, "module invalid")

	got := s.String()
	want := "2: unknown identifier\nmodule invalid"
	if got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestDiagnosticString(t *testing.T) {
	if got := (Diagnostic{Message: "msg", Line: 4}).String(); got != "4: msg" {
		t.Fatalf("String() = %q", got)
	}
	if got := (Diagnostic{Message: "msg"}).String(); got != "msg" {
		t.Fatalf("String() = %q", got)
	}
}
