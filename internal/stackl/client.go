// Package stackl talks to the Stackl orchestrator's REST API. Only the
// narrow contract the agent needs is covered: reading a stack instance and
// writing back its group assignment.
package stackl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"

	"github.com/stacklio/inventory-agent/internal/domain"
)

// Client defines the interface for the Stackl state store.
type Client interface {
	GetStackInstance(ctx context.Context, name string) (*domain.StackInstance, error)
	UpdateStackInstance(ctx context.Context, update domain.StackInstanceUpdate) error
}

// HTTPClient is the production implementation against a Stackl server.
type HTTPClient struct {
	baseURL string
	httpc   *http.Client
}

// Ensure HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithOAuth authenticates every request with a client-credentials token, for
// deployments where Stackl sits behind an identity-aware proxy.
func WithOAuth(ctx context.Context, cfg clientcredentials.Config) Option {
	return func(c *HTTPClient) {
		c.httpc = cfg.Client(ctx)
	}
}

// New creates a client for the Stackl server at baseURL.
func New(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetStackInstance fetches a stack instance by name.
func (c *HTTPClient) GetStackInstance(ctx context.Context, name string) (*domain.StackInstance, error) {
	url := fmt.Sprintf("%s/stack_instances/%s", c.baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemoteState, err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching instance %q: %v", domain.ErrRemoteState, name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("stack instance %q: %w", name, domain.ErrNotFound)
	default:
		return nil, fmt.Errorf("%w: fetching instance %q: %s", domain.ErrRemoteState, name, resp.Status)
	}

	var instance domain.StackInstance
	if err := json.NewDecoder(resp.Body).Decode(&instance); err != nil {
		return nil, fmt.Errorf("%w: decoding instance %q: %v", domain.ErrRemoteState, name, err)
	}
	if instance.Name == "" {
		instance.Name = name
	}
	return &instance, nil
}

// stackInstanceUpdate is the wire shape of a group write-back.
type stackInstanceUpdate struct {
	StackInstanceName string         `json:"stack_instance_name"`
	Params            map[string]any `json:"params"`
	DisableInvocation bool           `json:"disable_invocation"`
}

// UpdateStackInstance writes the group assignment back to the instance as a
// single atomic update. DisableInvocation marks it metadata-only so Stackl
// does not re-trigger automation.
func (c *HTTPClient) UpdateStackInstance(ctx context.Context, update domain.StackInstanceUpdate) error {
	payload := stackInstanceUpdate{
		StackInstanceName: update.Name,
		Params:            map[string]any{"stackl_groups": update.Groups},
		DisableInvocation: update.DisableInvocation,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encoding update for %q: %v", domain.ErrRemoteState, update.Name, err)
	}

	url := fmt.Sprintf("%s/stack_instances", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRemoteState, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: updating instance %q: %v", domain.ErrRemoteState, update.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: updating instance %q: %s", domain.ErrRemoteState, update.Name, resp.Status)
	}
	return nil
}
