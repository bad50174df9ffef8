package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/stacklio/inventory-agent/internal/auth"
	"github.com/stacklio/inventory-agent/internal/domain"
	"github.com/stacklio/inventory-agent/internal/storage"
)

type contextKey string

const identityContextKey contextKey = "identity"

// Identity describes the authenticated caller: either a stored API key or a
// verified OIDC subject.
type Identity struct {
	APIKey  *domain.APIKey
	Subject string
}

// Auth creates authentication middleware. Callers present either a stored
// API key or, when verifier is non-nil, an OIDC bearer token. Until the
// first API key exists the bootstrap key is accepted.
func Auth(store storage.Storage, bootstrapKey string, verifier *auth.OIDCVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"code":401,"message":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, `{"code":401,"message":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}
			credential := strings.TrimPrefix(authHeader, "Bearer ")
			if credential == "" {
				http.Error(w, `{"code":401,"message":"empty credential"}`, http.StatusUnauthorized)
				return
			}

			ctx := r.Context()

			// Bootstrap key is honored only while no real keys exist.
			keyCount, err := store.CountAPIKeys(ctx)
			if err != nil {
				http.Error(w, `{"code":500,"message":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			if keyCount == 0 && bootstrapKey != "" {
				if subtle.ConstantTimeCompare([]byte(credential), []byte(bootstrapKey)) == 1 {
					ctx = context.WithValue(ctx, identityContextKey, &Identity{
						APIKey: &domain.APIKey{ID: "bootstrap", Name: "Bootstrap Key"},
					})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			keyHash := hashAPIKey(credential)
			storedKey, err := store.GetAPIKeyByHash(ctx, keyHash)
			if err == nil {
				// Update last used timestamp (fire and forget)
				go func() {
					_ = store.UpdateAPIKeyLastUsed(context.Background(), storedKey.ID)
				}()
				ctx = context.WithValue(ctx, identityContextKey, &Identity{APIKey: storedKey})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			if err != domain.ErrNotFound {
				http.Error(w, `{"code":500,"message":"internal server error"}`, http.StatusInternalServerError)
				return
			}

			// Not a known key; try it as an OIDC bearer token.
			if verifier != nil {
				claims, err := verifier.Verify(ctx, credential)
				if err == nil {
					ctx = context.WithValue(ctx, identityContextKey, &Identity{Subject: claims.Subject})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, `{"code":401,"message":"invalid credential"}`, http.StatusUnauthorized)
		})
	}
}

// hashAPIKey creates a SHA-256 hash of the API key.
// SHA-256 is enough for fast lookups since keys are high-entropy random strings.
func hashAPIKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// IdentityFromContext retrieves the authenticated identity from the request
// context.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityContextKey).(*Identity)
	return id
}
