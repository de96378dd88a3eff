// Package blueprint implements the textual exchange encoding for
// compiled artifacts: compact JSON, deflated at maximum compression,
// base64-encoded and prefixed with a version marker. The transform is
// deterministic, so the same artifact always encodes to the same
// string.
package blueprint

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// versionMarker is the single leading character of every encoded
// blueprint string.
const versionMarker = '0'

// Encode turns artifact JSON into the blueprint exchange string.
// The input must be valid JSON; it is compacted (no extraneous
// whitespace) before compression so the output is reproducible
// regardless of the formatting of the input.
func Encode(artifactJSON string) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(artifactJSON)); err != nil {
		return "", fmt.Errorf("invalid artifact JSON: %w", err)
	}

	var compressed bytes.Buffer
	zw, err := zlib.NewWriterLevel(&compressed, zlib.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(compact.Bytes()); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	encoded := base64.StdEncoding.EncodeToString(compressed.Bytes())
	return string(versionMarker) + encoded, nil
}

// Decode reverses Encode: strips the version marker, base64-decodes,
// inflates, and returns the compact artifact JSON.
func Decode(s string) (string, error) {
	if len(s) == 0 || s[0] != versionMarker {
		return "", fmt.Errorf("missing blueprint version marker")
	}
	compressed, err := base64.StdEncoding.DecodeString(s[1:])
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("invalid deflate payload: %w", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", fmt.Errorf("inflate: %w", err)
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("decoded payload is not JSON")
	}
	return string(raw), nil
}
