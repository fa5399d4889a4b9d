package reportcache

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists cached sections in a local file, for running without
// a Postgres instance.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// EnsureSchema creates the narrative store table when it does not exist yet.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS report_narrative_store (
	cache_key   TEXT PRIMARY KEY,
	created_at  TIMESTAMP NOT NULL,
	report_data TEXT,
	model       TEXT NOT NULL,
	errors      TEXT,
	coverage    TEXT
)`
	_, err := s.db.ExecContext(ctx, q)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, key Key) (*Result, error) {
	const q = `
SELECT created_at, COALESCE(report_data, ''), model, COALESCE(errors, ''), COALESCE(coverage, '')
FROM report_narrative_store
WHERE cache_key = ?`

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

// Put replaces the entry for the result's key, deleting and inserting in one
// transaction.
func (s *SQLiteStore) Put(ctx context.Context, result *Result) error {
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
		`DELETE FROM report_narrative_store WHERE cache_key = ?`, cacheKey); err != nil {
		return err
	}

	const q = `
INSERT INTO report_narrative_store (cache_key, created_at, report_data, model, errors, coverage)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err = tx.ExecContext(ctx, q,
		cacheKey, result.CreatedAt, nullIfEmptyText(string(result.ReportData)),
		result.Model, nullIfEmptyText(string(result.Errors)), coverage); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) Delete(ctx context.Context, key Key) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM report_narrative_store WHERE cache_key = ?`, key.Canonical())
	return err
}
