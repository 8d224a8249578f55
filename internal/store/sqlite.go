package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/seantiz/nodekeeper/internal/model"

	_ "modernc.org/sqlite"
)

const createDependentsTable = `
CREATE TABLE IF NOT EXISTS dependents (
    id         TEXT PRIMARY KEY,
    url        TEXT NOT NULL,
    created_at DATETIME NOT NULL
)`

const createTransitionsTable = `
CREATE TABLE IF NOT EXISTS transitions (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    transition  TEXT NOT NULL,
    result      TEXT NOT NULL,
    error       TEXT,
    endpoint    TEXT,
    duration_ms INTEGER NOT NULL,
    created_at  DATETIME NOT NULL
)`

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("not found")

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	for _, stmt := range []string{createDependentsTable, createTransitionsTable} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateDependent inserts a new dependent.
func (s *SQLiteStore) CreateDependent(ctx context.Context, d *model.Dependent) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO dependents (id, url, created_at) VALUES (?, ?, ?)",
		d.ID, d.URL, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dependent: %w", err)
	}
	return nil
}

// GetDependent retrieves a dependent by ID.
func (s *SQLiteStore) GetDependent(ctx context.Context, id string) (*model.Dependent, error) {
	d := &model.Dependent{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, url, created_at FROM dependents WHERE id = ?", id,
	).Scan(&d.ID, &d.URL, &d.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dependent: %w", err)
	}
	return d, nil
}

// ListDependents returns every dependent in registration order.
func (s *SQLiteStore) ListDependents(ctx context.Context) ([]*model.Dependent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, url, created_at FROM dependents ORDER BY created_at ASC, id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	defer rows.Close()

	var deps []*model.Dependent
	for rows.Next() {
		d := &model.Dependent{}
		if err := rows.Scan(&d.ID, &d.URL, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dependent: %w", err)
		}
		deps = append(deps, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dependents: %w", err)
	}
	return deps, nil
}

// DeleteDependent removes a dependent by ID.
func (s *SQLiteStore) DeleteDependent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM dependents WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete dependent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordTransition inserts a transition record.
func (s *SQLiteStore) RecordTransition(ctx context.Context, r *model.TransitionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (
			id, kind, transition, result, error, endpoint, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, string(r.Transition), r.Result, r.Error, r.Endpoint,
		r.DurationMS, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// ListTransitions returns a paginated list of transitions ordered by
// created_at DESC, along with the total count of all transitions.
func (s *SQLiteStore) ListTransitions(ctx context.Context, limit, offset int) ([]*model.TransitionRecord, int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, 0, fmt.Errorf("begin read tx: %w", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM transitions").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transitions: %w", err)
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, kind, transition, result, error, endpoint, duration_ms, created_at
		FROM transitions ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var recs []*model.TransitionRecord
	for rows.Next() {
		r := &model.TransitionRecord{}
		var tr string
		var errText, endpoint sql.NullString
		if err := rows.Scan(
			&r.ID, &r.Kind, &tr, &r.Result, &errText, &endpoint, &r.DurationMS, &r.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan transition: %w", err)
		}
		r.Transition = model.Transition(tr)
		r.Error = errText.String
		r.Endpoint = endpoint.String
		recs = append(recs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transitions: %w", err)
	}

	return recs, total, nil
}
