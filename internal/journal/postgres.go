package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the Postgres connection pool for the run journal.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres writes run entries into a Postgres table.
type Postgres struct {
	pool  execCloser
	table string
}

// NewPostgres creates a Postgres-backed journal using the provided config.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("journal.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "sync_runs"
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
	return &Postgres{pool: pool, table: table}, nil
}

// NewPostgresWithPool constructs a journal from an existing pool (primarily
// for testing).
func NewPostgresWithPool(pool execCloser, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "sync_runs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// RecordRun inserts one run entry.
func (p *Postgres) RecordRun(ctx context.Context, entry RunEntry) error {
	if p == nil || p.pool == nil {
		return fmt.Errorf("journal is not configured")
	}
	if entry.RunID == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	uncoveredJSON, err := json.Marshal(entry.Uncovered)
	if err != nil {
		return fmt.Errorf("marshal uncovered spans: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	started_at,
	finished_at,
	status,
	units,
	stored,
	already_present,
	skipped,
	failed,
	uncovered,
	error_message
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)`, p.table)

	args := []any{
		entry.RunID,
		entry.StartedAt,
		entry.FinishedAt,
		string(entry.Status),
		entry.Units,
		entry.Stored,
		entry.Present,
		entry.Skipped,
		entry.Failed,
		uncoveredJSON,
		entry.Error,
	}
	if _, err := p.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run entry: %w", err)
	}
	return nil
}
