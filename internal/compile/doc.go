// Package compile is the streaming compilation orchestrator. It is
// structured into small files by concern:
//
//   - service.go: Service type, admission flow, finalizer discipline.
//   - events.go: the closed event taxonomy streamed to clients.
//   - compiler.go: the external compiler contract and log buffer.
//   - subprocess.go: exec-based compiler implementation.
//   - options.go: compiler options and their sanitization.
//   - sanitize.go: source text validation and deny-list.
//   - errors.go: error types and helpers (IsValidation, IsCompiler).
//
// One Service drives at most one compilation at a time through the
// admission queue; everything a client sees arrives as an ordered
// sequence of Event values via the EmitFunc it supplies.
package compile
