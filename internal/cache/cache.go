// Package cache is the TTL-bounded hot layer over internal/store: two
// independently-mutexed maps (workspace listings, issue markdown) with a
// stale-on-failure read policy for issue bodies and persistence hydration
// on a cold in-memory miss.
package cache

import (
	"sync"
	"time"

	"github.com/kcartwright/jirafs/internal/metrics"
	"github.com/kcartwright/jirafs/internal/store"
)

// WorkspaceSnapshot is what GetWorkspaceSnapshot returns: the cached
// listing plus whether it is past its TTL.
type WorkspaceSnapshot struct {
	Issues  []store.IssueRef
	IsStale bool
}

type workspaceEntry struct {
	issues   []store.IssueRef
	cachedAt time.Time
}

type issueEntry struct {
	markdown      []byte
	cachedAt      time.Time
	sourceUpdated *string
}

// Cache is the in-memory hot cache layered over a persistent Store.
type Cache struct {
	workspaceTTL time.Duration
	issueTTL     time.Duration

	store   *store.Store
	metrics *metrics.Metrics

	workspaceMu sync.Mutex
	workspaces  map[string]workspaceEntry

	issueMu sync.Mutex
	issues  map[string]issueEntry
}

// New builds a Cache with no persistence backing (tests / dry runs).
func New(workspaceTTL, issueTTL time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		workspaceTTL: workspaceTTL,
		issueTTL:     issueTTL,
		metrics:      m,
		workspaces:   make(map[string]workspaceEntry),
		issues:       make(map[string]issueEntry),
	}
}

// NewWithStore builds a Cache backed by a persistent Store.
func NewWithStore(workspaceTTL, issueTTL time.Duration, s *store.Store, m *metrics.Metrics) *Cache {
	c := New(workspaceTTL, issueTTL, m)
	c.store = s
	return c
}

// GetWorkspaceSnapshot clones the entry under lock and classifies it as
// stale by TTL. A missing entry returns (nil, false) — callers may fall
// back to the persistent listing.
func (c *Cache) GetWorkspaceSnapshot(name string) (*WorkspaceSnapshot, bool) {
	c.workspaceMu.Lock()
	entry, ok := c.workspaces[name]
	c.workspaceMu.Unlock()
	if !ok {
		return nil, false
	}

	isStale := time.Since(entry.cachedAt) >= c.workspaceTTL
	if isStale {
		c.metrics.IncCacheMiss()
	} else {
		c.metrics.IncCacheHit()
	}

	issues := append([]store.IssueRef(nil), entry.issues...)
	return &WorkspaceSnapshot{Issues: issues, IsStale: isStale}, true
}

// UpsertWorkspaceIssues writes memory then forwards to persistence; a
// persistence error is logged by the caller, never surfaced.
func (c *Cache) UpsertWorkspaceIssues(name string, refs []store.IssueRef) error {
	c.workspaceMu.Lock()
	c.workspaces[name] = workspaceEntry{issues: refs, cachedAt: time.Now()}
	c.workspaceMu.Unlock()

	if c.store != nil {
		return c.store.UpsertWorkspaceIssueRefs(name, refs)
	}
	return nil
}

// ListWorkspaceIssueRefsFromPersistence is the fallback path for a
// GetWorkspaceSnapshot miss.
func (c *Cache) ListWorkspaceIssueRefsFromPersistence(name string) ([]store.IssueRef, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.ListWorkspaceIssueRefs(name)
}

// FetchFunc returns freshly fetched markdown and the remote's echoed
// "updated" value, or an error.
type FetchFunc func() ([]byte, *string, error)

// GetIssueMarkdownStaleSafe implements spec's central read policy:
//  1. fresh in-memory entry -> hit.
//  2. no in-memory entry at all -> try persistence, hydrate memory fresh.
//  3. otherwise call fetch; on success, skip rewriting identical bytes when
//     source_updated is unchanged; on failure, serve stale bytes if any
//     entry exists (stale or fresh), else propagate the error.
func (c *Cache) GetIssueMarkdownStaleSafe(key string, fetch FetchFunc) ([]byte, error) {
	now := time.Now()

	c.issueMu.Lock()
	existing, hasExisting := c.issues[key]
	c.issueMu.Unlock()

	if hasExisting && now.Sub(existing.cachedAt) < c.issueTTL {
		c.metrics.IncCacheHit()
		return existing.markdown, nil
	}

	if !hasExisting && c.store != nil {
		if row, err := c.store.GetIssue(key); err == nil && row != nil {
			hydrated := issueEntry{markdown: row.Markdown, cachedAt: now, sourceUpdated: row.Updated}
			c.issueMu.Lock()
			c.issues[key] = hydrated
			c.issueMu.Unlock()
			c.metrics.IncCacheHit()
			return row.Markdown, nil
		}
	}

	c.metrics.IncCacheMiss()
	freshMarkdown, freshUpdated, err := fetch()
	if err != nil {
		if hasExisting {
			c.metrics.IncStale()
			return existing.markdown, nil
		}
		return nil, err
	}

	c.issueMu.Lock()
	current, stillHasEntry := c.issues[key]
	if stillHasEntry && sameUpdated(current.sourceUpdated, freshUpdated) {
		current.cachedAt = now
		c.issues[key] = current
		c.issueMu.Unlock()
		return current.markdown, nil
	}
	c.issues[key] = issueEntry{markdown: freshMarkdown, cachedAt: now, sourceUpdated: freshUpdated}
	c.issueMu.Unlock()

	if c.store != nil {
		_ = c.store.UpsertIssue(key, freshMarkdown, freshUpdated)
	}

	return freshMarkdown, nil
}

func sameUpdated(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// CachedIssueLen returns the in-memory byte length of an issue's markdown,
// or false if not present in memory.
func (c *Cache) CachedIssueLen(key string) (int64, bool) {
	c.issueMu.Lock()
	defer c.issueMu.Unlock()
	entry, ok := c.issues[key]
	if !ok {
		return 0, false
	}
	return int64(len(entry.markdown)), true
}

// PersistentIssueLen reads the byte length from the persistent store
// without loading the blob.
func (c *Cache) PersistentIssueLen(key string) (int64, bool) {
	if c.store == nil {
		return 0, false
	}
	n, ok, err := c.store.IssueMarkdownLen(key)
	if err != nil {
		return 0, false
	}
	return n, ok
}

// IssueRow is one row to upsert in a batch.
type IssueRow struct {
	Key      string
	Markdown []byte
	Updated  *string
}

// UpsertIssuesBatch writes memory first, then forwards to the persistent
// store's batch operation.
func (c *Cache) UpsertIssuesBatch(rows []IssueRow) error {
	now := time.Now()
	c.issueMu.Lock()
	for _, r := range rows {
		c.issues[r.Key] = issueEntry{markdown: r.Markdown, cachedAt: now, sourceUpdated: r.Updated}
	}
	c.issueMu.Unlock()

	if c.store == nil {
		return nil
	}

	storeRows := make([]store.IssueRow, len(rows))
	for i, r := range rows {
		storeRows[i] = store.IssueRow{Key: r.Key, Markdown: r.Markdown, Updated: r.Updated}
	}
	_, err := c.store.UpsertIssuesBatch(storeRows)
	return err
}

// SidecarRow is one sidecar row to upsert; sidecars are persistence-only
// (C2 carries no in-memory sidecar map).
type SidecarRow struct {
	Key        string
	CommentsMD []byte
	Updated    *string
}

// UpsertIssueSidecarsBatch forwards directly to the persistent store.
func (c *Cache) UpsertIssueSidecarsBatch(rows []SidecarRow) error {
	if c.store == nil {
		return nil
	}
	storeRows := make([]store.SidecarRow, len(rows))
	for i, r := range rows {
		storeRows[i] = store.SidecarRow{Key: r.Key, CommentsMD: r.CommentsMD, Updated: r.Updated}
	}
	_, err := c.store.UpsertIssueSidecarsBatch(storeRows)
	return err
}

// PersistentSidecar reads a sidecar straight from the store, for the FS
// adapter's comments-file read path.
func (c *Cache) PersistentSidecar(key string) (*store.SidecarRow, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.GetIssueSidecar(key)
}

// PersistentSidecarLen returns the byte length of a persisted sidecar
// without loading the blob.
func (c *Cache) PersistentSidecarLen(key string) (int64, bool) {
	if c.store == nil {
		return 0, false
	}
	n, ok, err := c.store.IssueCommentsMDLen(key)
	if err != nil {
		return 0, false
	}
	return n, ok
}
