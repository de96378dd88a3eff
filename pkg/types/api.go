package types

// CompileRequest is the request body for POST /compile and
// POST /compile/sync.
type CompileRequest struct {
	// Required source text to compile.
	// example: signal iron = input("iron-plate")
	Source string `json:"source" example:"signal iron = input(\"iron-plate\")"`
	// Optional power pole layout variant: small, medium, big, substation.
	// example: medium
	PowerPoles string `json:"power_poles,omitempty" example:"medium"`
	// Optional blueprint label (unsafe characters are stripped).
	// example: Main Bus
	BlueprintName string `json:"blueprint_name,omitempty" example:"Main Bus"`
	// If true, skip the optimizer pass.
	// example: false
	NoOptimize bool `json:"no_optimize,omitempty" example:"false"`
	// If true, the sync endpoint includes the artifact JSON.
	// example: false
	JSONOutput bool `json:"json_output,omitempty" example:"false"`
	// Compiler log verbosity: debug, info, warning, error.
	// example: info
	LogLevel string `json:"log_level,omitempty" example:"info"`
}

// SyncCompileResponse is the buffered result returned by
// POST /compile/sync for clients that cannot consume SSE.
type SyncCompileResponse struct {
	// True when a blueprint was produced.
	// example: true
	Success bool `json:"success" example:"true"`
	// Final status message.
	// example: Compilation successful!
	Status string `json:"status,omitempty" example:"Compilation successful!"`
	// Compiler log lines in order.
	Logs []string `json:"logs"`
	// Encoded blueprint exchange string, empty on failure.
	Blueprint string `json:"blueprint,omitempty"`
	// Artifact JSON, empty on failure.
	JSON string `json:"json,omitempty"`
	// Error messages, empty on success.
	Errors []string `json:"errors"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
	// True when a compilation slot is held or requests are queued.
	// example: false
	Busy bool `json:"busy" example:"false"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
