package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists snapshots as JSON rows in a SQLite database.
type SQLiteStore[T any] struct {
	db   *sql.DB
	path string
}

// OpenSQLiteStore opens (creating when needed) the database at path.
func OpenSQLiteStore[T any](path string) (*SQLiteStore[T], error) {
	if path == "" {
		return nil, fmt.Errorf("state: db path cannot be empty")
	}
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("state: open database: %w", err)
	}
	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore[T]{db: db, path: path}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore[T]) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS snapshots (
		identifier TEXT PRIMARY KEY,
		schema_name TEXT NOT NULL,
		run_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		snapshot_id TEXT,
		etag TEXT,
		extra TEXT,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_snapshots_schema ON snapshots(schema_name);
	`)
	return err
}

// Path returns the database file backing the store.
func (s *SQLiteStore[T]) Path() string {
	return s.path
}

func (s *SQLiteStore[T]) Load(ctx context.Context, ref Ref) (T, Meta, bool, error) {
	var zero T
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	var (
		payload, extra    string
		snapshotID, etag  sql.NullString
		updatedAtUnixNano int64
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT payload, snapshot_id, etag, COALESCE(extra, ''), updated_at FROM snapshots WHERE identifier = ?`, key,
	).Scan(&payload, &snapshotID, &etag, &extra, &updatedAtUnixNano)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: load %s: %w", key, err)
	}

	var snapshot T
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	meta := Meta{
		SnapshotID: snapshotID.String,
		ETag:       etag.String,
		UpdatedAt:  time.Unix(0, updatedAtUnixNano).UTC(),
	}
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &meta.Extra); err != nil {
			return zero, Meta{}, false, fmt.Errorf("state: decode metadata of %s: %w", key, err)
		}
	}
	return snapshot, meta, true, nil
}

func (s *SQLiteStore[T]) Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode %s: %w", key, err)
	}
	var extra sql.NullString
	if len(meta.Extra) > 0 {
		raw, err := json.Marshal(meta.Extra)
		if err != nil {
			return Meta{}, fmt.Errorf("state: encode metadata of %s: %w", key, err)
		}
		extra = sql.NullString{String: string(raw), Valid: true}
	}
	if meta.UpdatedAt.IsZero() {
		meta.UpdatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (identifier, schema_name, run_id, payload, snapshot_id, etag, extra, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identifier) DO UPDATE SET
			payload = excluded.payload,
			snapshot_id = excluded.snapshot_id,
			etag = excluded.etag,
			extra = excluded.extra,
			updated_at = excluded.updated_at
	`, key, ref.Schema, ref.RunID, string(payload), meta.SnapshotID, meta.ETag, extra, meta.UpdatedAt.UnixNano())
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %s: %w", key, err)
	}
	return cloneMeta(meta), nil
}

// Runs returns the run ids stored for schema, most recently updated first.
func (s *SQLiteStore[T]) Runs(ctx context.Context, schema string) ([]string, error) {
	if strings.TrimSpace(schema) == "" {
		return nil, fmt.Errorf("state: schema is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id FROM snapshots WHERE schema_name = ? ORDER BY updated_at DESC, run_id`, schema)
	if err != nil {
		return nil, fmt.Errorf("state: list runs of %s: %w", schema, err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("state: list runs of %s: %w", schema, err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteStore[T]) Close() error {
	return s.db.Close()
}
