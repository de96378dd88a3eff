package aggregator

import (
	"os"
	"regexp"
)

var (
	upstreamBlockRe = regexp.MustCompile(`(?s)upstream\s+[\w_]+\s*\{([^}]+)\}`)
	serverDirRe     = regexp.MustCompile(`server\s+([\w.\-:]+)`)
)

// ParseUpstreams extracts backend addresses from the server directives
// of every upstream block in an nginx config. Duplicates are dropped,
// first occurrence order is kept.
func ParseUpstreams(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []string
	seen := make(map[string]struct{})
	for _, block := range upstreamBlockRe.FindAllStringSubmatch(string(b), -1) {
		for _, m := range serverDirRe.FindAllStringSubmatch(block[1], -1) {
			addr := m[1]
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out, nil
}
