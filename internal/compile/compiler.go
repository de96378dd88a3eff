package compile

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Result is the outcome of one compiler invocation.
type Result struct {
	// Success is true when Artifact holds the compiled artifact JSON;
	// false when it holds (or Diagnostics hold) the failure reason.
	Success bool
	// Artifact is the artifact JSON on success, or an error text on
	// failure.
	Artifact string
	// Diagnostics are ordered human-readable messages to relay after
	// the live log output.
	Diagnostics []string
}

// Compiler is the external language compiler consumed as a black box.
// Implementations stream progress lines to logw while running and must
// be safe to invoke once per request. A returned error (or panic) is
// treated as a failed compilation.
type Compiler interface {
	Compile(ctx context.Context, source string, opts Options, logw io.Writer) (Result, error)
}

// Func adapts a plain function to the Compiler interface.
type Func func(ctx context.Context, source string, opts Options, logw io.Writer) (Result, error)

func (f Func) Compile(ctx context.Context, source string, opts Options, logw io.Writer) (Result, error) {
	return f(ctx, source, opts, logw)
}

// logBuffer is an io.Writer whose contents can be drained as whole
// lines while a compiler goroutine keeps appending. A read cursor
// guarantees no line is returned twice.
type logBuffer struct {
	mu     sync.Mutex
	buf    strings.Builder
	cursor int
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// drainLines returns the complete, non-blank lines appended since the
// previous call, in order. A trailing unterminated fragment stays
// buffered unless final is set.
func (b *logBuffer) drainLines(final bool) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	content := b.buf.String()
	if b.cursor >= len(content) {
		return nil
	}
	chunk := content[b.cursor:]
	if !final {
		idx := strings.LastIndexByte(chunk, '\n')
		if idx < 0 {
			return nil
		}
		chunk = chunk[:idx+1]
	}
	b.cursor += len(chunk)

	var lines []string
	for _, line := range strings.Split(chunk, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
