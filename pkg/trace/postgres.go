package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresStore persists traces in PostgreSQL for multi-instance
// deployments.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore migrates the schema and wraps the connection.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresStore connects using a lib/pq DSN.
func OpenPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres trace store: %w", err)
	}
	return NewPostgresStore(db)
}

func (s *PostgresStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS chart_result_trace (
        chart_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        reference_version TEXT NOT NULL,
        ruleset_version TEXT NOT NULL,
        input_hash TEXT NOT NULL,
        result_payload BYTEA NOT NULL,
        created_at TIMESTAMPTZ NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_chart_result_trace_user
        ON chart_result_trace (user_id, created_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *PostgresStore) Persist(ctx context.Context, t contracts.ChartResultTrace) error {
	query := `INSERT INTO chart_result_trace (
        chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		t.ChartID, t.UserID, t.ReferenceVersion, t.RulesetVersion, t.InputHash, t.ResultPayload, t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, userID string) (contracts.ChartResultTrace, error) {
	query := `
        SELECT chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
        FROM chart_result_trace
        WHERE user_id = $1
        ORDER BY created_at DESC, chart_id DESC
        LIMIT 1`
	return s.queryOne(ctx, query, userID)
}

func (s *PostgresStore) Get(ctx context.Context, chartID string) (contracts.ChartResultTrace, error) {
	query := `
        SELECT chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
        FROM chart_result_trace
        WHERE chart_id = $1`
	return s.queryOne(ctx, query, chartID)
}

func (s *PostgresStore) queryOne(ctx context.Context, query string, arg string) (contracts.ChartResultTrace, error) {
	var t contracts.ChartResultTrace
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ChartID, &t.UserID, &t.ReferenceVersion, &t.RulesetVersion, &t.InputHash, &t.ResultPayload, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.ChartResultTrace{}, ErrNotFound
	}
	if err != nil {
		return contracts.ChartResultTrace{}, err
	}
	return t, nil
}

// Close releases the underlying connection.
func (s *PostgresStore) Close() error { return s.db.Close() }
