package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by a different schema version.
var ErrSchemaMismatch = errors.New("ledger: schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore persists the ledger in a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens or creates the ledger database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ledger: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ledger: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ledger: apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("ledger: check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("ledger: read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ledger: begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ledger: create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("ledger: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ledger: commit schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Pop(ctx context.Context, location string) (Item, []Item, error) {
	var popped Item
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx,
			`SELECT id, name, plate_type, location, updated_at FROM items
			 WHERE location = ? ORDER BY seq DESC LIMIT 1`, location)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrEmpty, location)
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM items WHERE id = ?", item.ID); err != nil {
			return err
		}
		if err := recordMove(ctx, tx, item.ID, "pop", location); err != nil {
			return err
		}
		popped = item
		return tx.Commit()
	})
	if err != nil {
		return Item{}, nil, wrapStoreError("pop", location, err)
	}
	rest, err := s.Contents(ctx, location)
	if err != nil {
		return popped, nil, err
	}
	return popped, rest, nil
}

func (s *SQLiteStore) Push(ctx context.Context, location string, item Item) error {
	if item.ID == "" {
		return fmt.Errorf("ledger: item id required")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		var seq int64
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(seq), 0) + 1 FROM items WHERE location = ?", location,
		).Scan(&seq); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO items (id, name, plate_type, location, seq, updated_at) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, plate_type = excluded.plate_type,
			 location = excluded.location, seq = excluded.seq, updated_at = excluded.updated_at`,
			item.ID, item.Name, item.PlateType, location, seq, now,
		); err != nil {
			return err
		}
		if err := recordMove(ctx, tx, item.ID, "push", location); err != nil {
			return err
		}
		return tx.Commit()
	})
	return wrapStoreError("push", location, err)
}

func (s *SQLiteStore) Contents(ctx context.Context, location string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, plate_type, location, updated_at FROM items
		 WHERE location = ? ORDER BY seq ASC`, location)
	if err != nil {
		return nil, wrapStoreError("contents", location, err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, wrapStoreError("contents", location, err)
		}
		items = append(items, item)
	}
	return items, wrapStoreError("contents", location, rows.Err())
}

func (s *SQLiteStore) Locations(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT location FROM items ORDER BY location")
	if err != nil {
		return nil, wrapStoreError("locations", "", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, wrapStoreError("locations", "", err)
		}
		names = append(names, name)
	}
	return names, wrapStoreError("locations", "", rows.Err())
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var (
		item    Item
		updated string
	)
	if err := row.Scan(&item.ID, &item.Name, &item.PlateType, &item.Location, &updated); err != nil {
		return Item{}, err
	}
	if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
		item.UpdatedAt = ts
	}
	return item, nil
}

func recordMove(ctx context.Context, tx *sql.Tx, itemID, action, location string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO moves (item_id, action, location, at) VALUES (?, ?, ?, ?)",
		itemID, action, location, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func wrapStoreError(op, location string, err error) error {
	if err == nil || errors.Is(err, ErrEmpty) {
		return err
	}
	return fmt.Errorf("ledger: %s %s: %w", op, location, err)
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
