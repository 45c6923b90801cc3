// Postgres-backed SnapshotStore adapter.
//
// Grounded on the teacher's internal/db/db.go (pgxpool connection setup,
// GetLatestSnapshot query shape), trimmed to the single snapshot
// concern this build's SPEC_FULL persistence section calls for --
// the teacher's document/user/permission/comment CRUD business logic is
// out of scope per spec §1 and is not carried over.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists snapshots in a doc_snapshots(doc_id, version,
// snapshot, created_at) table, matching the teacher's schema.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dbURL and returns a ready PostgresStore.
// Callers are responsible for running the doc_snapshots migration; this
// adapter only reads/writes rows.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse postgres url: %w", err)
	}
	// PgBouncer in transaction mode doesn't support prepared statements.
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Close releases the underlying connection pool.
func (p *PostgresStore) Close() {
	p.pool.Close()
}

// SaveSnapshot inserts a new snapshot version for documentID.
func (p *PostgresStore) SaveSnapshot(ctx context.Context, documentID string, snapshot []byte) error {
	var nextVersion int
	err := p.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) + 1 FROM doc_snapshots WHERE doc_id = $1
	`, documentID).Scan(&nextVersion)
	if err != nil {
		return fmt.Errorf("store: compute next version: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO doc_snapshots (doc_id, version, snapshot)
		VALUES ($1, $2, $3)
	`, documentID, nextVersion, snapshot)
	if err != nil {
		return fmt.Errorf("store: insert snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the highest-versioned snapshot for documentID, or
// nil if none exists.
func (p *PostgresStore) LoadSnapshot(ctx context.Context, documentID string) ([]byte, error) {
	var snapshot []byte
	err := p.pool.QueryRow(ctx, `
		SELECT snapshot FROM doc_snapshots
		WHERE doc_id = $1
		ORDER BY version DESC
		LIMIT 1
	`, documentID).Scan(&snapshot)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load snapshot: %w", err)
	}
	return snapshot, nil
}
