package compile

import (
	"io"
	"testing"
)

func TestLogBufferDrainsCompleteLines(t *testing.T) {
	b := &logBuffer{}
	io.WriteString(b, "first\nsec")
	lines := b.drainLines(false)
	if len(lines) != 1 || lines[0] != "first" {
		t.Fatalf("expected [first], got %v", lines)
	}
	// The partial line stays buffered.
	if lines := b.drainLines(false); lines != nil {
		t.Fatalf("expected nothing, got %v", lines)
	}
	io.WriteString(b, "ond\nthird\n")
	lines = b.drainLines(false)
	if len(lines) != 2 || lines[0] != "second" || lines[1] != "third" {
		t.Fatalf("expected [second third], got %v", lines)
	}
}

func TestLogBufferFinalFlushIncludesFragment(t *testing.T) {
	b := &logBuffer{}
	io.WriteString(b, "done\ntrailing fragment")
	_ = b.drainLines(false)
	lines := b.drainLines(true)
	if len(lines) != 1 || lines[0] != "trailing fragment" {
		t.Fatalf("expected trailing fragment, got %v", lines)
	}
}

func TestLogBufferSkipsBlankLines(t *testing.T) {
	b := &logBuffer{}
	io.WriteString(b, "a\n\n   \nb\n")
	lines := b.drainLines(false)
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("blank lines not skipped: %v", lines)
	}
}

func TestLogBufferNoDoubleEmission(t *testing.T) {
	b := &logBuffer{}
	io.WriteString(b, "x\n")
	if got := b.drainLines(false); len(got) != 1 {
		t.Fatalf("first drain: %v", got)
	}
	if got := b.drainLines(true); got != nil {
		t.Fatalf("line emitted twice: %v", got)
	}
}
