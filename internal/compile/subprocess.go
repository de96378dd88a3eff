package compile

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// subprocessCompiler invokes the compiler binary once per request:
// source on stdin, artifact JSON on stdout, progress lines on stderr.
type subprocessCompiler struct {
	bin string
}

// NewSubprocessCompiler returns a Compiler that execs bin for every
// compilation.
func NewSubprocessCompiler(bin string) Compiler {
	return &subprocessCompiler{bin: bin}
}

func (c *subprocessCompiler) Compile(ctx context.Context, source string, opts Options, logw io.Writer) (Result, error) {
	args := []string{"--json", "--log-level", opts.LogLevel}
	if opts.PowerPoles != "" {
		args = append(args, "--power-poles", opts.PowerPoles)
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	if opts.NoOptimize {
		args = append(args, "--no-optimize")
	}

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Stdin = strings.NewReader(source)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	// stderr goes straight to the caller's log buffer so output can be
	// drained while the process runs.
	var stderrTail tailWriter
	cmd.Stderr = io.MultiWriter(logw, &stderrTail)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if _, ok := err.(*exec.ExitError); ok {
			reason := strings.TrimSpace(stderrTail.String())
			if reason == "" {
				reason = err.Error()
			}
			return Result{Success: false, Artifact: reason}, nil
		}
		return Result{}, fmt.Errorf("run %s: %w", c.bin, err)
	}

	artifact := strings.TrimSpace(stdout.String())
	if artifact == "" {
		return Result{Success: false, Artifact: "compiler produced no output"}, nil
	}
	return Result{Success: true, Artifact: artifact}, nil
}

// tailWriter retains the last few KB written, enough to surface a
// failure reason without holding the whole log.
type tailWriter struct {
	buf []byte
}

const tailWriterMax = 4096

func (t *tailWriter) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailWriterMax {
		t.buf = t.buf[len(t.buf)-tailWriterMax:]
	}
	return len(p), nil
}

func (t *tailWriter) String() string { return string(t.buf) }
