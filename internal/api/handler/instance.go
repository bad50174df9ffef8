package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stacklio/inventory-agent/internal/reconcile"
)

// InstanceHandler exposes reconciliation for stack instances.
type InstanceHandler struct {
	engine *reconcile.Engine
}

// NewInstanceHandler creates a new InstanceHandler.
func NewInstanceHandler(engine *reconcile.Engine) *InstanceHandler {
	return &InstanceHandler{engine: engine}
}

// Reconcile runs a reconciliation pass and returns the recorded run.
func (h *InstanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	_, run, err := h.engine.Reconcile(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}

// Inventory runs a reconciliation pass and returns the rendered inventory in
// the dynamic-source shape automation tooling consumes.
func (h *InstanceHandler) Inventory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	inv, _, err := h.engine.Reconcile(r.Context(), name)
	if err != nil {
		handleError(w, err)
		return
	}

	rendered, err := inv.Render()
	if err != nil {
		handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write(rendered)
}
