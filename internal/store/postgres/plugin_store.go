// Package postgres provides a Postgres-backed PluginStore. Each record
// is one slug-keyed row with the aggregate serialized as JSONB, which
// matches the engine's load-whole-record/save-whole-record contract.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/plugwatch/plugwatch/internal/review"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PluginStore persists PluginRecord rows in Postgres.
type PluginStore struct {
	pool  querier
	table string
}

// New creates a Postgres-backed PluginStore using the provided config.
func New(ctx context.Context, cfg Config) (*PluginStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "plugins"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PluginStore{pool: pool, table: table}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool querier, table string) (*PluginStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "plugins"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PluginStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the backing table when absent.
func (s *PluginStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		slug TEXT PRIMARY KEY,
		record JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Load fetches a record by slug.
func (s *PluginStore) Load(ctx context.Context, slug string) (review.PluginRecord, error) {
	query := fmt.Sprintf("SELECT record FROM %s WHERE slug = $1", s.table)
	var payload []byte
	err := s.pool.QueryRow(ctx, query, slug).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return review.PluginRecord{}, fmt.Errorf("plugin %s: %w", slug, review.ErrNotFound)
	}
	if err != nil {
		return review.PluginRecord{}, fmt.Errorf("load plugin %s: %w", slug, err)
	}
	var record review.PluginRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return review.PluginRecord{}, fmt.Errorf("decode plugin %s: %w", slug, err)
	}
	return record, nil
}

// Save upserts a record under its slug.
func (s *PluginStore) Save(ctx context.Context, record review.PluginRecord) error {
	if record.Slug == "" {
		return fmt.Errorf("%w: empty slug", review.ErrValidation)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode plugin %s: %w", record.Slug, err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (slug, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (slug) DO UPDATE SET record = EXCLUDED.record, updated_at = now()`, s.table)
	if _, err := s.pool.Exec(ctx, query, record.Slug, payload); err != nil {
		return fmt.Errorf("save plugin %s: %w", record.Slug, err)
	}
	return nil
}

// Delete removes a record by slug.
func (s *PluginStore) Delete(ctx context.Context, slug string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE slug = $1", s.table)
	tag, err := s.pool.Exec(ctx, query, slug)
	if err != nil {
		return fmt.Errorf("delete plugin %s: %w", slug, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("plugin %s: %w", slug, review.ErrNotFound)
	}
	return nil
}

// List returns all records ordered by slug.
func (s *PluginStore) List(ctx context.Context) ([]review.PluginRecord, error) {
	query := fmt.Sprintf("SELECT record FROM %s ORDER BY slug", s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list plugins: %w", err)
	}
	defer rows.Close()

	var out []review.PluginRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan plugin row: %w", err)
		}
		var record review.PluginRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, fmt.Errorf("decode plugin row: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plugin rows: %w", err)
	}
	return out, nil
}

// Close releases the underlying pool.
func (s *PluginStore) Close() {
	s.pool.Close()
}
