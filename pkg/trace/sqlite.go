package trace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Orrery-Labs/natal/core/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists traces in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore migrates the schema and wraps the connection.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) the database at path. Use ":memory:"
// for an ephemeral store.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite trace store: %w", err)
	}
	return NewSQLiteStore(db)
}

func (s *SQLiteStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS chart_result_trace (
        chart_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL,
        reference_version TEXT NOT NULL,
        ruleset_version TEXT NOT NULL,
        input_hash TEXT NOT NULL,
        result_payload BLOB NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_chart_result_trace_user
        ON chart_result_trace (user_id, created_at);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteStore) Persist(ctx context.Context, t contracts.ChartResultTrace) error {
	query := `INSERT INTO chart_result_trace (
        chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?)`

	createdAt := t.CreatedAt.UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, query,
		t.ChartID, t.UserID, t.ReferenceVersion, t.RulesetVersion, t.InputHash, t.ResultPayload, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trace: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLatest(ctx context.Context, userID string) (contracts.ChartResultTrace, error) {
	query := `
        SELECT chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
        FROM chart_result_trace
        WHERE user_id = ?
        ORDER BY created_at DESC, chart_id DESC
        LIMIT 1`
	return s.queryOne(ctx, query, userID)
}

func (s *SQLiteStore) Get(ctx context.Context, chartID string) (contracts.ChartResultTrace, error) {
	query := `
        SELECT chart_id, user_id, reference_version, ruleset_version, input_hash, result_payload, created_at
        FROM chart_result_trace
        WHERE chart_id = ?`
	return s.queryOne(ctx, query, chartID)
}

func (s *SQLiteStore) queryOne(ctx context.Context, query string, arg string) (contracts.ChartResultTrace, error) {
	var t contracts.ChartResultTrace
	var createdAt string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ChartID, &t.UserID, &t.ReferenceVersion, &t.RulesetVersion, &t.InputHash, &t.ResultPayload, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.ChartResultTrace{}, ErrNotFound
	}
	if err != nil {
		return contracts.ChartResultTrace{}, err
	}
	t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return contracts.ChartResultTrace{}, fmt.Errorf("corrupt created_at in trace %s: %w", t.ChartID, err)
	}
	return t, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }
