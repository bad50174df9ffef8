// Package memory provides an in-memory storage implementation for testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stacklio/inventory-agent/internal/domain"
)

// Store is an in-memory implementation of the storage interface for testing.
type Store struct {
	mu sync.RWMutex

	apiKeys map[string]*domain.APIKey      // key: id
	runs    map[string]*domain.ReconcileRun // key: id
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		apiKeys: make(map[string]*domain.APIKey),
		runs:    make(map[string]*domain.ReconcileRun),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apiKeys[key.ID]; exists {
		return domain.ErrAlreadyExists
	}
	for _, existing := range s.apiKeys {
		if existing.KeyHash == key.KeyHash {
			return domain.ErrAlreadyExists
		}
	}
	cp := *key
	s.apiKeys[key.ID] = &cp
	return nil
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.apiKeys {
		if key.KeyHash == keyHash {
			cp := *key
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.APIKey, 0, len(s.apiKeys))
	for _, key := range s.apiKeys {
		cp := *key
		keys = append(keys, &cp)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].CreatedAt.Before(keys[j].CreatedAt) })
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.apiKeys[id]; !exists {
		return domain.ErrNotFound
	}
	delete(s.apiKeys, id)
	return nil
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, exists := s.apiKeys[id]
	if !exists {
		return domain.ErrNotFound
	}
	now := time.Now()
	key.LastUsedAt = &now
	return nil
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.apiKeys), nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.ReconcileRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return domain.ErrAlreadyExists
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.ReconcileRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; !exists {
		return domain.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.ReconcileRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.runs[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *Store) ListRuns(ctx context.Context, instance string, limit int) ([]*domain.ReconcileRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.ReconcileRun, 0, len(s.runs))
	for _, run := range s.runs {
		if instance != "" && run.Instance != instance {
			continue
		}
		cp := *run
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}
