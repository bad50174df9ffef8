package secrets

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// conjurVarMarker separates the policy prefix from the variable path in a
// Conjur secret reference, e.g. "!var prod/db/password".
const conjurVarMarker = "!var"

// ConjurOptions configures the Conjur backend. Verify is string-typed for
// historical reasons: "true"/"false" (any case) toggle TLS verification and
// any other non-empty value is taken as a CA-bundle file path.
type ConjurOptions struct {
	Addr      string
	Account   string
	TokenPath string
	Verify    string
}

// ConjurResolver fetches variables from a CyberArk Conjur appliance using a
// locally cached identity token.
type ConjurResolver struct {
	opts   ConjurOptions
	client *http.Client
}

// Ensure ConjurResolver implements Resolver.
var _ Resolver = (*ConjurResolver)(nil)

// NewConjurResolver creates a resolver for the appliance at opts.Addr.
func NewConjurResolver(opts ConjurOptions) (*ConjurResolver, error) {
	transport, err := conjurTransport(opts.Verify)
	if err != nil {
		return nil, &ResolutionError{Backend: HandlerConjur, Err: err}
	}
	return &ConjurResolver{
		opts:   opts,
		client: &http.Client{Transport: transport},
	}, nil
}

// conjurTransport maps the string-typed verify flag onto TLS settings.
func conjurTransport(verify string) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	switch strings.ToLower(verify) {
	case "", "true":
		// Verify against system roots.
	case "false":
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	default:
		pem, err := os.ReadFile(verify)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle %s: %w", verify, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", verify)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool}
	}
	return transport, nil
}

// Name returns the backend identifier.
func (r *ConjurResolver) Name() string { return HandlerConjur }

// Resolve issues one GET per reference against
// {addr}/secrets/{account}/variable/{path}, where path is the part of the
// reference after the "!var" marker. The trimmed response body is the value.
func (r *ConjurResolver) Resolve(ctx context.Context, refs map[string]string) (map[string]string, error) {
	header, err := r.authHeader()
	if err != nil {
		return nil, &ResolutionError{Backend: HandlerConjur, Err: err}
	}

	out := make(map[string]string, len(refs))
	for _, key := range sortedKeys(refs) {
		ref := refs[key]
		_, path, found := strings.Cut(ref, conjurVarMarker)
		if !found {
			return nil, &ResolutionError{Backend: HandlerConjur, Key: key, Err: fmt.Errorf("reference has no %q marker", conjurVarMarker)}
		}
		path = strings.TrimSpace(path)

		url := fmt.Sprintf("%s/secrets/%s/variable/%s", strings.TrimRight(r.opts.Addr, "/"), r.opts.Account, path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, &ResolutionError{Backend: HandlerConjur, Key: key, Err: err}
		}
		req.Header.Set("Authorization", header)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, &ResolutionError{Backend: HandlerConjur, Key: key, Err: err}
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &ResolutionError{Backend: HandlerConjur, Key: key, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &ResolutionError{Backend: HandlerConjur, Key: key, Err: fmt.Errorf("appliance returned %s", resp.Status)}
		}

		out[key] = strings.TrimSpace(string(body))
	}
	return out, nil
}

// authHeader reads the cached identity token (a JSON document), re-encodes it
// compactly and wraps it in Conjur's token authorization scheme.
func (r *ConjurResolver) authHeader() (string, error) {
	raw, err := os.ReadFile(r.opts.TokenPath)
	if err != nil {
		return "", err
	}

	var token any
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", fmt.Errorf("parsing identity token %s: %w", r.opts.TokenPath, err)
	}
	normalized, err := json.Marshal(token)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("Token token=%q", base64.StdEncoding.EncodeToString(normalized)), nil
}
