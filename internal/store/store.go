// Package store is the durable SQLite-backed persistence layer: issues,
// their comment sidecars, workspace listings, and per-workspace sync
// cursors. Every query and write method takes the connection mutex for its
// whole duration — there is exactly one process-wide connection, matching the
// single shared *sql.DB the rest of the system treats as a value type.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps the single shared SQLite connection.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// IssueRow is one persisted issues row.
type IssueRow struct {
	Key      string
	Markdown []byte
	Updated  *string
}

// SidecarRow is one persisted issue_sidecars row.
type SidecarRow struct {
	Key        string
	CommentsMD []byte
	Updated    *string
}

// IssueRef is a lightweight (key, updated) listing entry.
type IssueRef struct {
	Key     string
	Updated *string
}

// Open opens or creates a SQLite database at dbPath. If the existing
// database has an incompatible schema, it is deleted and recreated once.
func Open(dbPath string) (*Store, error) {
	s, err := openDB(dbPath)
	if err != nil {
		if isSchemaMismatch(err) {
			if rmErr := os.Remove(dbPath); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, fmt.Errorf("remove incompatible cache: %w", rmErr)
			}
			os.Remove(dbPath + "-wal")
			os.Remove(dbPath + "-shm")
			return openDB(dbPath)
		}
		return nil, err
	}
	return s, nil
}

func isSchemaMismatch(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "SQL logic error")
}

func openDB(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
	}

	escaped := strings.ReplaceAll(dbPath, " ", "%20")
	db, err := sql.Open("sqlite", "file:"+escaped+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DefaultDBPath returns the default persistent cache path under the user's
// config directory.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "jirafs-cache.db"
	}
	return filepath.Join(dir, "jirafs", "cache.db")
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// GetIssue reads one issue row and, on hit, increments its access_count in
// the same critical section.
func (s *Store) GetIssue(key string) (*IssueRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT markdown, updated FROM issues WHERE issue_key = ?`, key)
	var markdown []byte
	var updated sql.NullString
	if err := row.Scan(&markdown, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if _, err := s.db.Exec(`UPDATE issues SET access_count = access_count + 1 WHERE issue_key = ?`, key); err != nil {
		return nil, err
	}

	out := &IssueRow{Key: key, Markdown: markdown}
	if updated.Valid {
		v := updated.String
		out.Updated = &v
	}
	return out, nil
}

// UpsertIssue inserts or replaces one issue row, bumping access_count on
// every call (insert or update alike).
func (s *Store) UpsertIssue(key string, markdown []byte, updated *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertIssueLocked(s.db, key, markdown, updated)
}

func (s *Store) upsertIssueLocked(exec execer, key string, markdown []byte, updated *string) error {
	_, err := exec.Exec(`
		INSERT INTO issues (issue_key, markdown, updated, cached_at, access_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(issue_key) DO UPDATE SET
			markdown = excluded.markdown,
			updated = excluded.updated,
			cached_at = excluded.cached_at,
			access_count = issues.access_count + 1
	`, key, markdown, nullable(updated), now())
	return err
}

// UpsertIssuesBatch writes all rows in a single transaction and returns the
// row count.
func (s *Store) UpsertIssuesBatch(rows []IssueRow) (int, error) {
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, r := range rows {
			if err := s.upsertIssueLocked(tx, r.Key, r.Markdown, r.Updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// UpsertIssueSidecarsBatch writes all sidecar rows in one transaction.
func (s *Store) UpsertIssueSidecarsBatch(rows []SidecarRow) (int, error) {
	err := s.WithTx(context.Background(), func(tx *sql.Tx) error {
		for _, r := range rows {
			_, err := tx.Exec(`
				INSERT INTO issue_sidecars (issue_key, comments_md, updated, cached_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(issue_key) DO UPDATE SET
					comments_md = excluded.comments_md,
					updated = excluded.updated,
					cached_at = excluded.cached_at
			`, r.Key, r.CommentsMD, nullable(r.Updated), now())
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

// GetIssueSidecar reads one sidecar row, or nil if absent.
func (s *Store) GetIssueSidecar(key string) (*SidecarRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT comments_md, updated FROM issue_sidecars WHERE issue_key = ?`, key)
	var md []byte
	var updated sql.NullString
	if err := row.Scan(&md, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	out := &SidecarRow{Key: key, CommentsMD: md}
	if updated.Valid {
		v := updated.String
		out.Updated = &v
	}
	return out, nil
}

// UpsertWorkspaceIssueRefs replaces (not merges) a workspace's listing:
// DELETE then INSERT, in one transaction.
func (s *Store) UpsertWorkspaceIssueRefs(workspace string, refs []IssueRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM workspace_issues WHERE workspace = ?`, workspace); err != nil {
		return err
	}
	for _, r := range refs {
		if _, err := tx.Exec(`
			INSERT INTO workspace_issues (workspace, issue_key, updated) VALUES (?, ?, ?)
		`, workspace, r.Key, nullable(r.Updated)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListWorkspaceIssueRefs lists a workspace's refs ordered by issue_key ASC.
func (s *Store) ListWorkspaceIssueRefs(workspace string) ([]IssueRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT issue_key, updated FROM workspace_issues
		WHERE workspace = ? ORDER BY issue_key ASC
	`, workspace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IssueRef
	for rows.Next() {
		var key string
		var updated sql.NullString
		if err := rows.Scan(&key, &updated); err != nil {
			return nil, err
		}
		ref := IssueRef{Key: key}
		if updated.Valid {
			v := updated.String
			ref.Updated = &v
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// GetSyncCursor returns the stored cursor for workspace, or nil if unset.
func (s *Store) GetSyncCursor(workspace string) (*string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT last_sync FROM sync_cursor WHERE workspace = ?`, workspace)
	var v string
	if err := row.Scan(&v); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// SetSyncCursor upserts the cursor value for workspace.
func (s *Store) SetSyncCursor(workspace, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO sync_cursor (workspace, last_sync) VALUES (?, ?)
		ON CONFLICT(workspace) DO UPDATE SET last_sync = excluded.last_sync
	`, workspace, value)
	return err
}

// ClearSyncCursor deletes the cursor row for workspace, if any.
func (s *Store) ClearSyncCursor(workspace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM sync_cursor WHERE workspace = ?`, workspace)
	return err
}

// IssueMarkdownLen returns the byte length of a persisted issue's markdown
// without loading the blob, and whether the row exists.
func (s *Store) IssueMarkdownLen(key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRow(`SELECT length(markdown) FROM issues WHERE issue_key = ?`, key).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// IssueCommentsMDLen returns the byte length of a persisted sidecar without
// loading the blob, and whether the row exists.
func (s *Store) IssueCommentsMDLen(key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	err := s.db.QueryRow(`SELECT length(comments_md) FROM issue_sidecars WHERE issue_key = ?`, key).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func nullable(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

// WithTx runs fn inside a single transaction under the connection mutex;
// UpsertIssuesBatch and UpsertIssueSidecarsBatch both build on it.
func (s *Store) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
