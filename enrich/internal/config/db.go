package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the preview_pages table.
const Schema = `
CREATE TABLE IF NOT EXISTS preview_pages (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	player_parent TEXT NOT NULL DEFAULT '',
	stealth       INTEGER NOT NULL DEFAULT 1,
	status        TEXT NOT NULL DEFAULT 'active',
	updated_at    INTEGER NOT NULL
);

-- rev counts every write to preview_pages, whoever makes it.
CREATE TABLE IF NOT EXISTS preview_pages_rev (
	id  INTEGER PRIMARY KEY CHECK (id = 1),
	rev INTEGER NOT NULL
);
INSERT OR IGNORE INTO preview_pages_rev (id, rev) VALUES (1, 0);

CREATE TRIGGER IF NOT EXISTS preview_pages_rev_insert AFTER INSERT ON preview_pages
BEGIN UPDATE preview_pages_rev SET rev = rev + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS preview_pages_rev_update AFTER UPDATE ON preview_pages
BEGIN UPDATE preview_pages_rev SET rev = rev + 1 WHERE id = 1; END;
CREATE TRIGGER IF NOT EXISTS preview_pages_rev_delete AFTER DELETE ON preview_pages
BEGIN UPDATE preview_pages_rev SET rev = rev + 1 WHERE id = 1; END;
`

// ErrPageNotFound is returned when no page has the given id.
var ErrPageNotFound = errors.New("config: page not found")

// Store is the SQLite page list.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the page database at path with WAL, a busy
// timeout and the schema applied. ":memory:" is accepted.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("config: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("config: open: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		Schema,
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("config: %s: %w", strings.TrimSpace(firstLine(p)), err)
		}
	}
	return &Store{db: db}, nil
}

// NewStore wraps an already opened database. The schema is applied.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("config: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// LoadPages reads all active pages.
func (s *Store) LoadPages(ctx context.Context) ([]PageConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, url, player_parent, stealth
		FROM preview_pages
		WHERE status = 'active'
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("config: load pages: %w", err)
	}
	defer rows.Close()

	var pages []PageConfig
	for rows.Next() {
		var p PageConfig
		var stealth int
		if err := rows.Scan(&p.ID, &p.URL, &p.PlayerParent, &stealth); err != nil {
			return nil, fmt.Errorf("config: scan page: %w", err)
		}
		on := stealth != 0
		p.Stealth = &on
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// PutPage inserts or replaces a page and marks it active.
func (s *Store) PutPage(ctx context.Context, p PageConfig) error {
	if p.ID == "" || p.URL == "" {
		return fmt.Errorf("config: put page: id and url are required")
	}
	stealth := 0
	if p.StealthEnabled() {
		stealth = 1
	}
	return s.exec(ctx, `
		INSERT INTO preview_pages (id, url, player_parent, stealth, status, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?)
		ON CONFLICT(id) DO UPDATE SET
			url = excluded.url,
			player_parent = excluded.player_parent,
			stealth = excluded.stealth,
			status = 'active',
			updated_at = excluded.updated_at
	`, p.ID, p.URL, p.PlayerParent, stealth, time.Now().UnixMilli())
}

// DisablePage marks a page inactive. The row is kept.
func (s *Store) DisablePage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE preview_pages SET status = 'disabled', updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("config: disable page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPageNotFound
	}
	return nil
}

// exec retries on SQLITE_BUSY with a short linear backoff.
func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	const attempts = 3
	for i := range attempts {
		_, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return nil
		}
		if !isBusy(err) || i == attempts-1 {
			return fmt.Errorf("config: exec: %w", err)
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("config: exec: %w", ctx.Err())
		case <-t.C:
		}
	}
	return nil
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
