package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/stacklio/inventory-agent/internal/api/handler"
	"github.com/stacklio/inventory-agent/internal/api/middleware"
	"github.com/stacklio/inventory-agent/internal/auth"
	"github.com/stacklio/inventory-agent/internal/reconcile"
	"github.com/stacklio/inventory-agent/internal/storage"
)

// NewRouter creates a new HTTP router with all routes configured. verifier
// may be nil when OIDC is disabled.
func NewRouter(
	store storage.Storage,
	engine *reconcile.Engine,
	bootstrapKey string,
	verifier *auth.OIDCVerifier,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(store, bootstrapKey, verifier))

		// API Keys
		keyHandler := handler.NewAPIKeyHandler(store)
		r.Post("/keys", keyHandler.Create)
		r.Get("/keys", keyHandler.List)
		r.Delete("/keys/{id}", keyHandler.Delete)

		// Stack instances
		instanceHandler := handler.NewInstanceHandler(engine)
		r.Post("/instances/{name}/reconcile", instanceHandler.Reconcile)
		r.Get("/instances/{name}/inventory", instanceHandler.Inventory)

		// Run history
		runHandler := handler.NewRunHandler(store)
		r.Get("/runs", runHandler.List)
		r.Get("/runs/{id}", runHandler.Get)
	})

	return r
}
