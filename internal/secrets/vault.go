package secrets

import (
	"context"
	"fmt"

	vault "github.com/hashicorp/vault/api"
)

// VaultResolver reads secrets from a HashiCorp Vault KV store. The bearer
// token is re-read from its file on every call so that rotated tokens are
// picked up without a restart.
type VaultResolver struct {
	addr      string
	tokenPath string
}

// Ensure VaultResolver implements Resolver.
var _ Resolver = (*VaultResolver)(nil)

// NewVaultResolver creates a resolver against the Vault server at addr,
// authenticating with the token stored at tokenPath (first line only).
func NewVaultResolver(addr, tokenPath string) *VaultResolver {
	return &VaultResolver{addr: addr, tokenPath: tokenPath}
}

// Name returns the backend identifier.
func (r *VaultResolver) Name() string { return HandlerVault }

// Resolve reads every referenced secret and flattens all returned key/value
// pairs into one map. References are processed in sorted key order, so on
// key collision the last reference wins deterministically.
func (r *VaultResolver) Resolve(ctx context.Context, refs map[string]string) (map[string]string, error) {
	token, err := firstLine(r.tokenPath)
	if err != nil {
		return nil, &ResolutionError{Backend: HandlerVault, Err: err}
	}

	cfg := vault.DefaultConfig()
	cfg.Address = r.addr
	client, err := vault.NewClient(cfg)
	if err != nil {
		return nil, &ResolutionError{Backend: HandlerVault, Err: err}
	}
	client.SetToken(token)

	out := make(map[string]string)
	for _, key := range sortedKeys(refs) {
		path := refs[key]
		secret, err := client.Logical().ReadWithContext(ctx, path)
		if err != nil {
			return nil, &ResolutionError{Backend: HandlerVault, Key: key, Err: err}
		}
		if secret == nil || secret.Data == nil {
			return nil, &ResolutionError{Backend: HandlerVault, Key: key, Err: fmt.Errorf("no secret at %q", path)}
		}

		data := secret.Data
		// KV v2 nests the payload under "data".
		if nested, ok := secret.Data["data"].(map[string]any); ok {
			data = nested
		}
		for k, v := range data {
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}
