package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat is how timestamps are stored.
const timeFormat = time.RFC3339Nano

// Store defines the persistence operations used by the node.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]Setting, error)
	Delete(ctx context.Context, key string) error

	BeginAttempt(ctx context.Context, id, url string) error
	FinishAttempt(ctx context.Context, id, result string, code int, message string) error
	Attempts(ctx context.Context, limit int) ([]Attempt, error)

	// Erase removes all settings and attempts.
	Erase(ctx context.Context) error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a store over a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Get returns the value stored under key.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM node_settings WHERE key = ?", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("reading setting %s: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return ErrInvalidKey
	}
	const query = `INSERT INTO node_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, value, s.stamp()); err != nil {
		return fmt.Errorf("writing setting %s: %w", key, err)
	}
	return nil
}

// All returns every setting ordered by key.
func (s *SQLiteStore) All(ctx context.Context) ([]Setting, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM node_settings ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("listing settings: %w", err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var st Setting
		var updated string
		if err := rows.Scan(&st.Key, &st.Value, &updated); err != nil {
			return nil, fmt.Errorf("scanning setting: %w", err)
		}
		st.UpdatedAt = parseTime(updated)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating settings: %w", err)
	}
	return out, nil
}

// Delete removes key. Deleting a missing key returns ErrNotFound.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM node_settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting setting %s: %w", key, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return nil
}

// BeginAttempt records the start of an update attempt.
func (s *SQLiteStore) BeginAttempt(ctx context.Context, id, url string) error {
	const query = `INSERT INTO update_attempts (id, url, started_at) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, id, url, s.stamp()); err != nil {
		return fmt.Errorf("inserting attempt %s: %w", id, err)
	}
	return nil
}

// FinishAttempt records the outcome of an attempt started with BeginAttempt.
func (s *SQLiteStore) FinishAttempt(ctx context.Context, id, result string, code int, message string) error {
	const query = `UPDATE update_attempts
		SET finished_at = ?, result = ?, code = ?, message = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, s.stamp(), result, code, message, id)
	if err != nil {
		return fmt.Errorf("updating attempt %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports rows affected
		return fmt.Errorf("%w: attempt %s", ErrNotFound, id)
	}
	return nil
}

// Attempts returns up to limit attempts, newest first.
func (s *SQLiteStore) Attempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `SELECT id, url, started_at, finished_at, result, code, message
		FROM update_attempts ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a        Attempt
			started  string
			finished sql.NullString
			result   sql.NullString
			code     sql.NullInt64
			message  sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.URL, &started, &finished, &result, &code, &message); err != nil {
			return nil, fmt.Errorf("scanning attempt: %w", err)
		}
		a.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			a.FinishedAt = &t
		}
		a.Result = result.String
		a.Code = int(code.Int64)
		a.Message = message.String
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating attempts: %w", err)
	}
	return out, nil
}

// Erase removes all settings and attempts in one transaction.
func (s *SQLiteStore) Erase(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting erase: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	for _, table := range []string{"node_settings", "update_attempts"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil { //nolint:gosec // table names are constants
			return fmt.Errorf("erasing %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing erase: %w", err)
	}
	return nil
}

func (s *SQLiteStore) stamp() string {
	return s.now().UTC().Format(timeFormat)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeFormat, v) //nolint:errcheck // format is ours
	return t
}
