package compile

import (
	"regexp"
	"strings"
)

// Options are the knobs passed through to the external compiler.
type Options struct {
	// PowerPoles selects the pole layout variant: small, medium, big,
	// or substation. Empty lets the compiler choose.
	PowerPoles string
	// Name labels the produced blueprint.
	Name string
	// NoOptimize disables the optimizer pass.
	NoOptimize bool
	// JSONOutput requests the artifact as JSON (always set internally;
	// kept for API parity with the sync endpoint).
	JSONOutput bool
	// LogLevel selects compiler verbosity: debug, info, warning, error.
	LogLevel string
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warning": true, "error": true}
	validPowerPoles = map[string]bool{"": true, "small": true, "medium": true, "big": true, "substation": true}

	nameDenied = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
)

// Sanitized returns a copy with unknown enum values replaced by safe
// defaults and the blueprint name stripped of unsafe characters.
func (o Options) Sanitized() Options {
	if !validLogLevels[o.LogLevel] {
		o.LogLevel = "info"
	}
	if !validPowerPoles[o.PowerPoles] {
		o.PowerPoles = ""
	}
	o.Name = SanitizeBlueprintName(o.Name)
	return o
}

// SanitizeBlueprintName keeps only alphanumerics, spaces, hyphens and
// underscores, trims whitespace, and caps the length at 100 runes.
// Names that sanitize to nothing become empty.
func SanitizeBlueprintName(name string) string {
	if name == "" {
		return ""
	}
	cleaned := nameDenied.ReplaceAllString(name, "")
	cleaned = strings.TrimSpace(cleaned)
	if runes := []rune(cleaned); len(runes) > 100 {
		cleaned = string(runes[:100])
	}
	return strings.TrimSpace(cleaned)
}
