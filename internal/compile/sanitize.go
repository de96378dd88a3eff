package compile

import (
	"fmt"
	"regexp"
	"strings"
)

// dangerousPatterns is a small deny-list of shell-injection shapes that
// never occur in legitimate source text.
var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`;\s*(rm|wget|curl)\s+-`),
	regexp.MustCompile(`\$\(.*\bsh\b`),
	regexp.MustCompile("`.*\\bsh\\b"),
}

// validateSource checks source text against the configured limits.
// It deliberately validates only basic safety properties so that
// legitimate programs are never rejected.
func validateSource(source string, maxLen int) error {
	if strings.TrimSpace(source) == "" {
		return validationError{msg: "source code cannot be empty"}
	}
	if len(source) > maxLen {
		return validationError{msg: fmt.Sprintf("source code exceeds maximum length of %d characters", maxLen)}
	}
	if strings.ContainsRune(source, '\x00') {
		return validationError{msg: "source code contains null bytes"}
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(source) {
			return validationError{msg: "source contains potentially dangerous patterns"}
		}
	}
	return nil
}
