package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteStore stores every collection as one row of a single SQLite database.
//
// Tables:
//
//	collections(name, data, updated_at)  PRIMARY KEY (name)
//
// data holds the same JSON array the file backend writes, so a write is a
// single upsert and readers never see half of one.
type SqliteStore struct {
	db   *sql.DB
	opts options
}

func NewSqliteStore(dbPath string, opts ...Option) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	// DSN pragmas apply to every pooled connection, not just the first.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db, opts: buildOptions(opts)}, nil
}

func (s *SqliteStore) Open(name string) (Collection, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	return newCollection(name, &sqliteDoc{db: s.db, name: name}, s.opts), nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type sqliteDoc struct {
	db   *sql.DB
	name string
}

func (d *sqliteDoc) read(ctx context.Context) ([]byte, error) {
	var raw string
	err := d.db.QueryRowContext(ctx,
		"SELECT data FROM collections WHERE name = ?", d.name,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (d *sqliteDoc) replace(ctx context.Context, data []byte) error {
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO collections (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		d.name, string(data), time.Now().UnixMilli(),
	)
	return err
}
