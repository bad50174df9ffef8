// Package storage defines persistence for reconciliation runs and API keys.
package storage

import (
	"context"

	"github.com/stacklio/inventory-agent/internal/domain"
)

// Storage defines the interface for the storage layer.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Close closes the storage connection.
	Close() error

	// API Keys
	CreateAPIKey(ctx context.Context, key *domain.APIKey) error
	GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error)
	ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error
	UpdateAPIKeyLastUsed(ctx context.Context, id string) error
	CountAPIKeys(ctx context.Context) (int, error)

	// Reconciliation runs
	CreateRun(ctx context.Context, run *domain.ReconcileRun) error
	UpdateRun(ctx context.Context, run *domain.ReconcileRun) error
	GetRun(ctx context.Context, id string) (*domain.ReconcileRun, error)
	// ListRuns returns runs newest first. An empty instance matches all
	// instances; limit <= 0 means no limit.
	ListRuns(ctx context.Context, instance string, limit int) ([]*domain.ReconcileRun, error)
}
