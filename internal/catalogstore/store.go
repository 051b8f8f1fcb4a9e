package catalogstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Entry is one stored catalog row.
type Entry struct {
	Name      string
	Fields    map[string]string
	FetchedAt time.Time
}

// Store keeps fetched psrcat rows in a single SQLite table as JSON payloads
// keyed by pulsar name.
type Store struct {
	db   *sql.DB
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// Open creates or opens the store at path.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "psrinfo.sqlite"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS catalog_rows (
		name TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		fetched_at INTEGER NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create catalog_rows table: %w", err)
	}
	return &Store{db: db, path: path, now: time.Now}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Put upserts one row.
func (s *Store) Put(ctx context.Context, name string, fields map[string]string) error {
	return s.PutMany(ctx, []Entry{{Name: name, Fields: fields}})
}

// PutMany upserts several rows in one transaction.
func (s *Store) PutMany(ctx context.Context, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stamp := s.now().UTC()
	for _, e := range entries {
		if e.Name == "" {
			return errors.New("catalog entry has no name")
		}
		payload, err := json.Marshal(e.Fields)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", e.Name, err)
		}
		at := e.FetchedAt
		if at.IsZero() {
			at = stamp
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO catalog_rows(name, payload, fetched_at) VALUES(?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET payload=excluded.payload, fetched_at=excluded.fetched_at`,
			e.Name, payload, at.UnixNano()); err != nil {
			return fmt.Errorf("upsert %s: %w", e.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Entry returns the stored row for name including its fetch time.
func (s *Store) Entry(ctx context.Context, name string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload, fetched_at FROM catalog_rows WHERE name = ?`, name)
	var (
		payload []byte
		at      int64
	)
	if err := row.Scan(&payload, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("select %s: %w", name, err)
	}
	e, err := decode(name, payload, at)
	if err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// List returns every stored row ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload, fetched_at FROM catalog_rows ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select catalog_rows: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			name    string
			payload []byte
			at      int64
		)
		if err := rows.Scan(&name, &payload, &at); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		e, err := decode(name, payload, at)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes a row; deleting an absent row is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM catalog_rows WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

func decode(name string, payload []byte, at int64) (Entry, error) {
	var fields map[string]string
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", name, err)
	}
	return Entry{Name: name, Fields: fields, FetchedAt: time.Unix(0, at).UTC()}, nil
}
