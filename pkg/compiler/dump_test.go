package compiler

import (
	"errors"
	"testing"
)

func TestDump(t *testing.T) {
	prog := Parse("+>[-[<.]],")
	want := `Increment (1)
Shift (1)
Loop [
  Increment (-1)
  Loop [
    Shift (-1)
    Output
  ]
]
Input
`
	if got := DumpString(prog); got != want {
		t.Errorf("Dump mismatch.\nGot:\n%s\nWant:\n%s", got, want)
	}
}

func TestDump_Empty(t *testing.T) {
	if got := DumpString(nil); got != "" {
		t.Errorf("Dump(nil) = %q, want empty", got)
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after == 0 {
		return 0, errors.New("disk full")
	}
	w.after--
	return len(p), nil
}

func TestDump_PropagatesWriteError(t *testing.T) {
	prog := Parse("[[+]]")
	if err := Dump(&failingWriter{after: 2}, prog); err == nil {
		t.Error("expected write error, got nil")
	}
}
