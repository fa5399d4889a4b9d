package reportcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/narravox/pkg/models"
)

// PGStore persists cached sections in Postgres, usually sharing the database
// that holds the conversations.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore { return &PGStore{db: db} }

// EnsureSchema creates the narrative store table when it does not exist yet.
// report_data is TEXT, not JSONB: cached sections must replay byte for byte,
// and JSONB normalizes key order and whitespace.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS report_narrative_store (
	cache_key   TEXT PRIMARY KEY,
	created_at  TIMESTAMPTZ NOT NULL,
	report_data TEXT,
	model       TEXT NOT NULL,
	errors      TEXT,
	coverage    JSONB
)`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *PGStore) Get(ctx context.Context, key Key) (*Result, error) {
	const q = `
SELECT created_at, COALESCE(report_data, ''), model, COALESCE(errors, ''), COALESCE(coverage::text, '')
FROM report_narrative_store
WHERE cache_key = $1`

	var (
		createdAt  time.Time
		reportData string
		model      string
		errTag     string
		coverage   string
	)
	err := s.db.QueryRowContext(ctx, q, key.Canonical()).
		Scan(&createdAt, &reportData, &model, &errTag, &coverage)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return buildResult(key, createdAt, reportData, model, errTag, coverage)
}

// Put replaces the entry for the result's key. Delete and insert run in one
// transaction so readers never observe a missing entry in between.
func (s *PGStore) Put(ctx context.Context, result *Result) error {
	coverage, err := marshalCoverage(result.Coverage)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	cacheKey := result.Key.Canonical()
	if _, err = tx.ExecContext(ctx,
		`DELETE FROM report_narrative_store WHERE cache_key = $1`, cacheKey); err != nil {
		return err
	}

	const q = `
INSERT INTO report_narrative_store (cache_key, created_at, report_data, model, errors, coverage)
VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err = tx.ExecContext(ctx, q,
		cacheKey, result.CreatedAt, nullIfEmptyText(string(result.ReportData)),
		result.Model, nullIfEmptyText(string(result.Errors)), coverage); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *PGStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM report_narrative_store WHERE cache_key = $1`, key.Canonical())
	return err
}

// buildResult assembles a Result from scanned columns; shared with the
// SQLite store, which keeps the same column layout.
func buildResult(key Key, createdAt time.Time, reportData, model, errTag, coverage string) (*Result, error) {
	result := &Result{
		Key:       key,
		CreatedAt: createdAt,
		Model:     model,
		Errors:    models.ErrorTag(errTag),
	}
	if reportData != "" {
		result.ReportData = json.RawMessage(reportData)
	}
	if coverage != "" {
		var metrics models.CoverageMetrics
		if err := json.Unmarshal([]byte(coverage), &metrics); err != nil {
			return nil, fmt.Errorf("reportcache: decode coverage: %w", err)
		}
		result.Coverage = &metrics
	}
	return result, nil
}

// Helpers. JSON columns travel as strings so the text parameters coerce to
// JSONB on the Postgres side.
func nullIfEmptyText(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalCoverage(metrics *models.CoverageMetrics) (any, error) {
	if metrics == nil {
		return nil, nil
	}
	data, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("reportcache: encode coverage: %w", err)
	}
	return string(data), nil
}
