package secrets

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Base64Resolver decodes references that carry the secret inline as base64.
// No external backend is involved.
type Base64Resolver struct{}

// Ensure Base64Resolver implements Resolver.
var _ Resolver = (*Base64Resolver)(nil)

// Name returns the backend identifier.
func (r *Base64Resolver) Name() string { return HandlerBase64 }

// Resolve decodes every reference as standard base64. References with
// stripped padding are corrected by right-padding with '=' up to the nearest
// multiple of 4. The decoded bytes must be valid UTF-8; trailing whitespace
// is stripped from the value.
func (r *Base64Resolver) Resolve(ctx context.Context, refs map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(refs))
	for key, ref := range refs {
		padded := ref
		if rem := len(padded) % 4; rem != 0 {
			padded += strings.Repeat("=", 4-rem)
		}
		raw, err := base64.StdEncoding.DecodeString(padded)
		if err != nil {
			return nil, &ResolutionError{Backend: HandlerBase64, Key: key, Err: err}
		}
		if !utf8.Valid(raw) {
			return nil, &ResolutionError{Backend: HandlerBase64, Key: key, Err: errors.New("decoded value is not valid UTF-8")}
		}
		out[key] = strings.TrimRightFunc(string(raw), unicode.IsSpace)
	}
	return out, nil
}
