package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stacklio/inventory-agent/internal/storage"
)

// defaultRunLimit bounds run listings when the caller does not pass one.
const defaultRunLimit = 50

// RunHandler exposes the reconciliation run history.
type RunHandler struct {
	store storage.Storage
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(store storage.Storage) *RunHandler {
	return &RunHandler{store: store}
}

// List lists runs, newest first. Supports ?instance= and ?limit= filters.
func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	instance := r.URL.Query().Get("instance")

	limit := defaultRunLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	runs, err := h.store.ListRuns(r.Context(), instance, limit)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// Get returns one run by id, including its rendered inventory.
func (h *RunHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		handleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, run)
}
