package fsadapter

import (
	"context"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/kcartwright/jirafs/internal/cache"
	"github.com/kcartwright/jirafs/internal/metrics"
	"github.com/kcartwright/jirafs/internal/store"
	jsync "github.com/kcartwright/jirafs/internal/sync"
)

func newTestRoot(t *testing.T) *Root {
	t.Helper()
	return &Root{
		Cache:      cache.New(time.Minute, time.Minute, metrics.New()),
		State:      jsync.NewState(60),
		Workspaces: []string{"default"},
		UID:        1000,
		GID:        1000,
	}
}

func TestMetaFileContentLastSyncNeverThenElapsed(t *testing.T) {
	root := newTestRoot(t)
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaLastSync}

	if got := string(node.content()); got != "never\n" {
		t.Fatalf("expected never before any sync, got %q", got)
	}

	root.State.MarkSyncComplete(time.Now().UTC().Add(-5 * time.Second))
	got := string(node.content())
	if !strings.HasSuffix(got, "seconds ago\n") {
		t.Fatalf("expected elapsed text, got %q", got)
	}
}

func TestMetaFileSecondsToNextSyncCountsDown(t *testing.T) {
	root := newTestRoot(t)
	root.State.MarkSyncComplete(time.Now().UTC())
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaSecondsToNext}

	got := string(node.content())
	if got == "0\n" || got == "" {
		t.Fatalf("expected a positive countdown shortly after a sync, got %q", got)
	}
}

func TestMetaFileWriteTriggersManualRefresh(t *testing.T) {
	root := newTestRoot(t)
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaManualRefresh}

	n, errno := node.Write(context.Background(), nil, []byte("1"), 0)
	if errno != 0 {
		t.Fatalf("unexpected errno %v", errno)
	}
	if n != 1 {
		t.Fatalf("expected written=1, got %d", n)
	}
	if !root.State.CheckAndClearManualTrigger() {
		t.Fatal("expected manual trigger to be set")
	}
}

// TestMetaFileWriteIgnoresUnrecognizedPayload mirrors the boundary behavior:
// writing "maybe" reports the full byte count written but fires no trigger.
func TestMetaFileWriteIgnoresUnrecognizedPayload(t *testing.T) {
	root := newTestRoot(t)
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaFullRefresh}

	n, errno := node.Write(context.Background(), nil, []byte("maybe"), 0)
	if errno != 0 {
		t.Fatalf("unexpected errno %v", errno)
	}
	if n != 5 {
		t.Fatalf("expected written=5, got %d", n)
	}
	if root.State.CheckAndClearManualFullTrigger() {
		t.Fatal("expected no trigger fired for an unrecognized payload")
	}
}

func TestMetaFileWriteAtNonZeroOffsetIsInvalid(t *testing.T) {
	root := newTestRoot(t)
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaManualRefresh}

	_, errno := node.Write(context.Background(), nil, []byte("1"), 5)
	if errno != syscall.EINVAL {
		t.Fatalf("expected EINVAL, got %v", errno)
	}
}

func TestMetaFileWriteToReadOnlyFileIsRejected(t *testing.T) {
	root := newTestRoot(t)
	node := &MetaFileNode{BaseNode: BaseNode{root: root}, kind: metaLastSync}

	_, errno := node.Write(context.Background(), nil, []byte("1"), 0)
	if errno != syscall.EROFS {
		t.Fatalf("expected EROFS, got %v", errno)
	}
}

func TestIssueFileNodePlaceholderWhenCacheAndPersistenceEmpty(t *testing.T) {
	root := newTestRoot(t)
	node := &IssueFileNode{BaseNode: BaseNode{root: root}, workspace: "default", key: "ST-1"}

	got := string(node.bytes())
	want := "# ST-1\n\nNot yet available in local cache. Wait for sync interval or trigger manual refresh via .sync_meta/manual_refresh.\n"
	if got != want {
		t.Fatalf("expected placeholder body, got %q", got)
	}
	if node.size() != int64(len(want)) {
		t.Fatalf("expected size %d, got %d", len(want), node.size())
	}
}

func TestIssueFileNodeServesCachedMarkdown(t *testing.T) {
	root := newTestRoot(t)
	updated := "2026-02-20T10:00:00.000+0000"
	if err := root.Cache.UpsertIssuesBatch([]cache.IssueRow{{Key: "ST-1", Markdown: []byte("# ST-1\n\nbody\n"), Updated: &updated}}); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	node := &IssueFileNode{BaseNode: BaseNode{root: root}, workspace: "default", key: "ST-1"}
	if got := string(node.bytes()); got != "# ST-1\n\nbody\n" {
		t.Fatalf("expected cached markdown, got %q", got)
	}
}

func TestIssueCommentsNodePlaceholderWhenSidecarMissing(t *testing.T) {
	root := newTestRoot(t)
	node := &IssueCommentsNode{BaseNode: BaseNode{root: root}, workspace: "default", key: "ST-1"}

	got := string(node.bytes())
	if !strings.Contains(got, "ST-1") || !strings.Contains(got, "Not yet available") {
		t.Fatalf("expected placeholder body, got %q", got)
	}
}

func TestWorkspaceNodeListedKeysFallsBackToPersistence(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	root := &Root{
		Cache:      cache.NewWithStore(time.Minute, time.Minute, st, metrics.New()),
		State:      jsync.NewState(60),
		Workspaces: []string{"default"},
	}

	updated := "2026-02-20T10:00:00.000+0000"
	if err := st.UpsertWorkspaceIssueRefs("default", []store.IssueRef{{Key: "ST-2", Updated: &updated}, {Key: "ST-1"}}); err != nil {
		t.Fatalf("seed workspace refs: %v", err)
	}

	node := &WorkspaceNode{BaseNode: BaseNode{root: root}, name: "default"}
	keys := node.listedKeys()
	if len(keys) != 2 || keys[0] != "ST-1" || keys[1] != "ST-2" {
		t.Fatalf("expected sorted [ST-1 ST-2], got %v", keys)
	}
	if !node.hasKey("ST-1") || node.hasKey("ST-3") {
		t.Fatal("hasKey mismatch against persisted listing")
	}
}

// TestIssueInodeSameAcrossOverlappingWorkspaces guards spec.md §3's
// invariant: an issue key surfaced by two different workspaces' listings
// must resolve to the same inode regardless of which workspace it was
// looked up through, since inodeForIssueMain/inodeForIssueComments take
// only the key, never the workspace name, as input.
func TestIssueInodeSameAcrossOverlappingWorkspaces(t *testing.T) {
	viaTeamA := inodeForIssueMain("ST-1")
	viaTeamB := inodeForIssueMain("ST-1")
	if viaTeamA != viaTeamB {
		t.Fatalf("expected the same issue key to resolve to one inode across workspaces, got %d and %d", viaTeamA, viaTeamB)
	}
}
