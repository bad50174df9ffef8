// Package sql provides a SQL-backed storage implementation (SQLite or
// PostgreSQL) with embedded goose migrations.
package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/stacklio/inventory-agent/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// Store implements the storage.Storage interface using SQL.
type Store struct {
	db *sqlx.DB
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := s.db.Rebind(`
		INSERT INTO api_keys (id, name, key_hash, key_prefix, created_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.CreatedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	query := s.db.Rebind(`SELECT * FROM api_keys WHERE key_hash = ?`)
	if err := s.db.GetContext(ctx, &key, query, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &key, nil
}

func (s *Store) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	keys := []*domain.APIKey{}
	if err := s.db.SelectContext(ctx, &keys, `SELECT * FROM api_keys ORDER BY created_at`); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	query := s.db.Rebind(`DELETE FROM api_keys WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) UpdateAPIKeyLastUsed(ctx context.Context, id string) error {
	query := s.db.Rebind(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) CountAPIKeys(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM api_keys`); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.ReconcileRun) error {
	query := s.db.Rebind(`
		INSERT INTO reconcile_runs (id, instance, status, groups_updated, inventory, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Instance, run.Status, run.GroupsUpdated,
		run.Inventory, run.Error, run.StartedAt, run.FinishedAt)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (s *Store) UpdateRun(ctx context.Context, run *domain.ReconcileRun) error {
	query := s.db.Rebind(`
		UPDATE reconcile_runs
		SET status = ?, groups_updated = ?, inventory = ?, error = ?, finished_at = ?
		WHERE id = ?`)
	res, err := s.db.ExecContext(ctx, query,
		run.Status, run.GroupsUpdated, run.Inventory, run.Error, run.FinishedAt, run.ID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GetRun(ctx context.Context, id string) (*domain.ReconcileRun, error) {
	var run domain.ReconcileRun
	query := s.db.Rebind(`SELECT * FROM reconcile_runs WHERE id = ?`)
	if err := s.db.GetContext(ctx, &run, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (s *Store) ListRuns(ctx context.Context, instance string, limit int) ([]*domain.ReconcileRun, error) {
	runs := []*domain.ReconcileRun{}
	args := []any{}
	query := `SELECT * FROM reconcile_runs`
	if instance != "" {
		query += ` WHERE instance = ?`
		args = append(args, instance)
	}
	query += ` ORDER BY started_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	if err := s.db.SelectContext(ctx, &runs, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return runs, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
