// Package secrets resolves opaque secret references into plaintext key/value
// pairs through one of several backends. The backend is selected once at
// construction from the configured handler name; call sites only see the
// Resolver interface.
package secrets

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Handler names accepted by New.
const (
	HandlerBase64 = "base64"
	HandlerVault  = "vault"
	HandlerConjur = "conjur"
)

// Resolver resolves a batch of secret references into plaintext values.
// Resolution is all-or-nothing: one unreadable reference fails the whole
// batch, because a partially populated inventory is worse than a hard
// failure. Implementations perform file and/or network I/O on every call and
// cache nothing, so repeated calls always re-resolve from the backend.
type Resolver interface {
	Resolve(ctx context.Context, refs map[string]string) (map[string]string, error)

	// Name returns the backend identifier for logging. Never includes secrets.
	Name() string
}

// ResolutionError wraps a backend failure, preserving the original cause.
// Key is the secret's map key, never the reference itself (for the base64
// backend the reference is the secret material).
type ResolutionError struct {
	Backend string
	Key     string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s secret %q: %v", e.Backend, e.Key, e.Err)
	}
	return fmt.Sprintf("%s secrets: %v", e.Backend, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Options selects and configures a resolver backend.
type Options struct {
	Handler string

	VaultAddr      string
	VaultTokenPath string

	ConjurAddr      string
	ConjurAccount   string
	ConjurTokenPath string
	ConjurVerify    string
}

// New constructs the resolver named by opts.Handler. An empty handler name
// defaults to base64.
func New(opts Options) (Resolver, error) {
	switch opts.Handler {
	case HandlerBase64, "":
		return &Base64Resolver{}, nil
	case HandlerVault:
		return NewVaultResolver(opts.VaultAddr, opts.VaultTokenPath), nil
	case HandlerConjur:
		return NewConjurResolver(ConjurOptions{
			Addr:      opts.ConjurAddr,
			Account:   opts.ConjurAccount,
			TokenPath: opts.ConjurTokenPath,
			Verify:    opts.ConjurVerify,
		})
	default:
		return nil, fmt.Errorf("unknown secret handler %q", opts.Handler)
	}
}

// sortedKeys returns the reference keys in stable order so that
// last-reference-wins flattening is deterministic.
func sortedKeys(refs map[string]string) []string {
	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// firstLine reads the first line of a file, trimmed of surrounding
// whitespace. Token files often end with a newline.
func firstLine(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("token file %s is empty", path)
	}
	return strings.TrimSpace(scanner.Text()), nil
}
