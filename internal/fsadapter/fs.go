// Package fsadapter exports the sync cache as a read-mostly FUSE
// filesystem: a root with a .sync_meta control directory and a workspaces
// tree of rendered issue markdown. Every node resolves against the
// in-memory cache (internal/cache), never the remote client directly —
// reads never block on network I/O.
package fsadapter

import (
	"context"
	"fmt"
	"strings"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/kcartwright/jirafs/internal/cache"
	jsync "github.com/kcartwright/jirafs/internal/sync"
)

const (
	dirMode      = 0o555 | syscall.S_IFDIR
	readOnlyFile = 0o444 | syscall.S_IFREG
	writableMeta = 0o644 | syscall.S_IFREG
	entryTTL     = time.Second
)

// Root is the shared state every node in the tree reaches back into: the
// cache, the coordinator's state (for trigger writes and status text),
// and the configured workspace names in stable order.
type Root struct {
	Cache      *cache.Cache
	State      *jsync.State
	Workspaces []string
	UID, GID   uint32
}

// BaseNode gives every node type owner fields and a back-pointer to Root.
type BaseNode struct {
	fs.Inode
	root *Root
}

func (b *BaseNode) setOwner(out *fuse.AttrOut) {
	out.Uid = b.root.UID
	out.Gid = b.root.GID
}

func fillEntry(out *fuse.EntryOut, mode uint32, size uint64, uid, gid uint32) {
	now := time.Now()
	out.Attr.Mode = mode
	out.Attr.Size = size
	out.Attr.Uid = uid
	out.Attr.Gid = gid
	out.Attr.SetTimes(&now, &now, &now)
	out.SetEntryTimeout(entryTTL)
	out.SetAttrTimeout(entryTTL)
}

// RootNode is the filesystem root: "." and "..", plus .sync_meta and
// workspaces.
type RootNode struct {
	BaseNode
}

var (
	_ fs.NodeReaddirer = (*RootNode)(nil)
	_ fs.NodeLookuper  = (*RootNode)(nil)
	_ fs.NodeGetattrer = (*RootNode)(nil)
)

func (r *RootNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = dirMode
	r.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (r *RootNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: ".sync_meta", Mode: syscall.S_IFDIR, Ino: inoSyncMeta},
		{Name: "workspaces", Mode: syscall.S_IFDIR, Ino: inoWorkspaces},
	}
	return fs.NewListDirStream(entries), 0
}

func (r *RootNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	switch name {
	case ".sync_meta":
		node := &SyncMetaNode{BaseNode: BaseNode{root: r.root}}
		fillEntry(out, dirMode, 0, r.root.UID, r.root.GID)
		return r.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: inoSyncMeta}), 0
	case "workspaces":
		node := &WorkspacesNode{BaseNode: BaseNode{root: r.root}}
		fillEntry(out, dirMode, 0, r.root.UID, r.root.GID)
		return r.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: inoWorkspaces}), 0
	default:
		return nil, syscall.ENOENT
	}
}

// metaKind identifies one of the five fixed .sync_meta pseudo-files.
type metaKind int

const (
	metaLastSync metaKind = iota
	metaLastFullSync
	metaSecondsToNext
	metaManualRefresh
	metaFullRefresh
)

var metaFiles = []struct {
	name string
	kind metaKind
	ino  uint64
}{
	{"last_sync", metaLastSync, inoLastSync},
	{"last_full_sync", metaLastFullSync, inoLastFullSync},
	{"seconds_to_next_sync", metaSecondsToNext, inoSecondsToNextSync},
	{"manual_refresh", metaManualRefresh, inoManualRefresh},
	{"full_refresh", metaFullRefresh, inoFullRefresh},
}

// SyncMetaNode is the .sync_meta control directory.
type SyncMetaNode struct {
	BaseNode
}

var (
	_ fs.NodeReaddirer = (*SyncMetaNode)(nil)
	_ fs.NodeLookuper  = (*SyncMetaNode)(nil)
	_ fs.NodeGetattrer = (*SyncMetaNode)(nil)
)

func (s *SyncMetaNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = dirMode
	s.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (s *SyncMetaNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(metaFiles))
	for _, mf := range metaFiles {
		entries = append(entries, fuse.DirEntry{Name: mf.name, Mode: syscall.S_IFREG, Ino: mf.ino})
	}
	return fs.NewListDirStream(entries), 0
}

func (s *SyncMetaNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, mf := range metaFiles {
		if mf.name != name {
			continue
		}
		node := &MetaFileNode{BaseNode: BaseNode{root: s.root}, kind: mf.kind}
		content := node.content()
		mode := uint32(readOnlyFile)
		if node.writable() {
			mode = writableMeta
		}
		fillEntry(out, mode, uint64(len(content)), s.root.UID, s.root.GID)
		return s.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG, Ino: mf.ino}), 0
	}
	return nil, syscall.ENOENT
}

// MetaFileNode is one of the five .sync_meta pseudo-files. Read-only files
// recompute their content on every read; the two writable ones additionally
// accept a trigger write.
type MetaFileNode struct {
	BaseNode
	kind metaKind
}

var (
	_ fs.NodeGetattrer = (*MetaFileNode)(nil)
	_ fs.NodeOpener    = (*MetaFileNode)(nil)
	_ fs.NodeReader    = (*MetaFileNode)(nil)
	_ fs.NodeWriter    = (*MetaFileNode)(nil)
	_ fs.NodeSetattrer = (*MetaFileNode)(nil)
)

func (m *MetaFileNode) writable() bool {
	return m.kind == metaManualRefresh || m.kind == metaFullRefresh
}

func (m *MetaFileNode) content() []byte {
	switch m.kind {
	case metaLastSync:
		return []byte(sinceOrNever(m.root.State.LastSyncEnd()))
	case metaLastFullSync:
		return []byte(sinceOrNever(m.root.State.LastFullSyncEnd()))
	case metaSecondsToNext:
		return []byte(fmt.Sprintf("%d\n", m.root.State.SecondsUntilNextSync(time.Now().UTC())))
	case metaManualRefresh:
		return []byte(triggerPrompt(m.root.State.InProgress(), "manual_refresh"))
	case metaFullRefresh:
		return []byte(triggerPrompt(m.root.State.InProgress(), "full_refresh"))
	default:
		return nil
	}
}

func sinceOrNever(t *time.Time) string {
	if t == nil {
		return "never\n"
	}
	secs := int64(time.Since(*t).Seconds())
	if secs < 0 {
		secs = 0
	}
	return fmt.Sprintf("%d seconds ago\n", secs)
}

func triggerPrompt(inProgress bool, name string) string {
	if inProgress {
		return "sync in progress\n"
	}
	return fmt.Sprintf("write \"1\" or \"true\" to %s\n", name)
}

func (m *MetaFileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	mode := uint32(readOnlyFile)
	if m.writable() {
		mode = writableMeta
	}
	out.Mode = mode
	out.Size = uint64(len(m.content()))
	m.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (m *MetaFileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if !m.writable() && (flags&syscall.O_ACCMODE) != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (m *MetaFileNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content := m.content()
	if off >= int64(len(content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return fuse.ReadResultData(content[off:end]), 0
}

func (m *MetaFileNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	if !m.writable() {
		return 0, syscall.EROFS
	}
	if off != 0 {
		return 0, syscall.EINVAL
	}

	payload := strings.ToLower(strings.TrimSpace(string(data)))
	if payload == "1" || payload == "true" {
		switch m.kind {
		case metaManualRefresh:
			m.root.State.TriggerManual()
		case metaFullRefresh:
			m.root.State.TriggerManualFull()
		}
	}
	return uint32(len(data)), 0
}

func (m *MetaFileNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if !m.writable() {
		return syscall.EROFS
	}
	return m.Getattr(ctx, f, out)
}

// WorkspacesNode lists the configured workspace names.
type WorkspacesNode struct {
	BaseNode
}

var (
	_ fs.NodeReaddirer = (*WorkspacesNode)(nil)
	_ fs.NodeLookuper  = (*WorkspacesNode)(nil)
	_ fs.NodeGetattrer = (*WorkspacesNode)(nil)
)

func (w *WorkspacesNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = dirMode
	w.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (w *WorkspacesNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, len(w.root.Workspaces))
	for _, name := range w.root.Workspaces {
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFDIR, Ino: inodeForWorkspace(name)})
	}
	return fs.NewListDirStream(entries), 0
}

func (w *WorkspacesNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, ws := range w.root.Workspaces {
		if ws != name {
			continue
		}
		node := &WorkspaceNode{BaseNode: BaseNode{root: w.root}, name: ws}
		ino := inodeForWorkspace(ws)
		fillEntry(out, dirMode, 0, w.root.UID, w.root.GID)
		return w.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: ino}), 0
	}
	return nil, syscall.ENOENT
}

// WorkspaceNode lists <KEY>.md and <KEY>.comments.md for every issue the
// cache currently has listed under this workspace.
type WorkspaceNode struct {
	BaseNode
	name string
}

var (
	_ fs.NodeReaddirer = (*WorkspaceNode)(nil)
	_ fs.NodeLookuper  = (*WorkspaceNode)(nil)
	_ fs.NodeGetattrer = (*WorkspaceNode)(nil)
)

func (w *WorkspaceNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = dirMode
	w.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

// listedKeys returns the workspace's cached issue keys in ascending order,
// falling back to persistence on an in-memory cache miss.
func (w *WorkspaceNode) listedKeys() []string {
	if snap, ok := w.root.Cache.GetWorkspaceSnapshot(w.name); ok {
		keys := make([]string, len(snap.Issues))
		for i, ref := range snap.Issues {
			keys[i] = ref.Key
		}
		return keys
	}

	refs, err := w.root.Cache.ListWorkspaceIssueRefsFromPersistence(w.name)
	if err != nil {
		return nil
	}
	keys := make([]string, len(refs))
	for i, ref := range refs {
		keys[i] = ref.Key
	}
	return keys
}

func (w *WorkspaceNode) hasKey(key string) bool {
	for _, k := range w.listedKeys() {
		if k == key {
			return true
		}
	}
	return false
}

func (w *WorkspaceNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	keys := w.listedKeys()
	entries := make([]fuse.DirEntry, 0, len(keys)*2)
	for _, key := range keys {
		entries = append(entries, fuse.DirEntry{
			Name: key + ".md", Mode: syscall.S_IFREG, Ino: inodeForIssueMain(key),
		})
		entries = append(entries, fuse.DirEntry{
			Name: key + ".comments.md", Mode: syscall.S_IFREG, Ino: inodeForIssueComments(key),
		})
	}
	return fs.NewListDirStream(entries), 0
}

func (w *WorkspaceNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	// Order matters: ".comments.md" must be stripped before ".md", since
	// the latter is also a suffix of the former.
	if key, ok := strings.CutSuffix(name, ".comments.md"); ok {
		if !w.hasKey(key) {
			return nil, syscall.ENOENT
		}
		node := &IssueCommentsNode{BaseNode: BaseNode{root: w.root}, workspace: w.name, key: key}
		ino := inodeForIssueComments(key)
		fillEntry(out, readOnlyFile, uint64(node.size()), w.root.UID, w.root.GID)
		return w.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino}), 0
	}

	if key, ok := strings.CutSuffix(name, ".md"); ok {
		if !w.hasKey(key) {
			return nil, syscall.ENOENT
		}
		node := &IssueFileNode{BaseNode: BaseNode{root: w.root}, workspace: w.name, key: key}
		ino := inodeForIssueMain(key)
		fillEntry(out, readOnlyFile, uint64(node.size()), w.root.UID, w.root.GID)
		return w.NewInode(ctx, node, fs.StableAttr{Mode: syscall.S_IFREG, Ino: ino}), 0
	}

	return nil, syscall.ENOENT
}

// alwaysMiss is the fetch function handed to GetIssueMarkdownStaleSafe from
// the read path: the FS adapter never performs a synchronous remote fetch,
// so this always fails and lets the stale-safe policy fall through to the
// placeholder body when nothing cached exists.
func alwaysMiss() ([]byte, *string, error) {
	return nil, nil, fmt.Errorf("fs adapter does not fetch synchronously")
}

func placeholder(key string) []byte {
	return []byte(fmt.Sprintf(
		"# %s\n\nNot yet available in local cache. Wait for sync interval or trigger manual refresh via .sync_meta/manual_refresh.\n",
		key,
	))
}

// IssueFileNode is <KEY>.md: the rendered issue body.
type IssueFileNode struct {
	BaseNode
	workspace, key string
}

var (
	_ fs.NodeGetattrer = (*IssueFileNode)(nil)
	_ fs.NodeOpener    = (*IssueFileNode)(nil)
	_ fs.NodeReader    = (*IssueFileNode)(nil)
	_ fs.NodeSetattrer = (*IssueFileNode)(nil)
)

func (n *IssueFileNode) size() int64 {
	if sz, ok := n.root.Cache.CachedIssueLen(n.key); ok {
		return sz
	}
	if sz, ok := n.root.Cache.PersistentIssueLen(n.key); ok {
		return sz
	}
	return int64(len(placeholder(n.key)))
}

func (n *IssueFileNode) bytes() []byte {
	data, err := n.root.Cache.GetIssueMarkdownStaleSafe(n.key, alwaysMiss)
	if err != nil {
		return placeholder(n.key)
	}
	return data
}

func (n *IssueFileNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = readOnlyFile
	out.Size = uint64(n.size())
	n.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (n *IssueFileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if (flags & syscall.O_ACCMODE) != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *IssueFileNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content := n.bytes()
	if off >= int64(len(content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return fuse.ReadResultData(content[off:end]), 0
}

func (n *IssueFileNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}

// IssueCommentsNode is <KEY>.comments.md: the rendered comments sidecar.
type IssueCommentsNode struct {
	BaseNode
	workspace, key string
}

var (
	_ fs.NodeGetattrer = (*IssueCommentsNode)(nil)
	_ fs.NodeOpener    = (*IssueCommentsNode)(nil)
	_ fs.NodeReader    = (*IssueCommentsNode)(nil)
	_ fs.NodeSetattrer = (*IssueCommentsNode)(nil)
)

func (n *IssueCommentsNode) size() int64 {
	if sz, ok := n.root.Cache.PersistentSidecarLen(n.key); ok {
		return sz
	}
	return int64(len(placeholder(n.key)))
}

func (n *IssueCommentsNode) bytes() []byte {
	sidecar, err := n.root.Cache.PersistentSidecar(n.key)
	if err != nil || sidecar == nil {
		return placeholder(n.key)
	}
	return sidecar.CommentsMD
}

func (n *IssueCommentsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	now := time.Now()
	out.Mode = readOnlyFile
	out.Size = uint64(n.size())
	n.setOwner(out)
	out.SetTimes(&now, &now, &now)
	return 0
}

func (n *IssueCommentsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if (flags & syscall.O_ACCMODE) != syscall.O_RDONLY {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, 0
}

func (n *IssueCommentsNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	content := n.bytes()
	if off >= int64(len(content)) {
		return fuse.ReadResultData(nil), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(content)) {
		end = int64(len(content))
	}
	return fuse.ReadResultData(content[off:end]), 0
}

func (n *IssueCommentsNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	return syscall.EROFS
}
