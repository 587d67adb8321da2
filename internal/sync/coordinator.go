package sync

import (
	"context"
	"time"

	"github.com/kcartwright/jirafs/internal/cache"
	"github.com/kcartwright/jirafs/internal/config"
	"github.com/kcartwright/jirafs/internal/jira"
	"github.com/kcartwright/jirafs/internal/logging"
	"github.com/kcartwright/jirafs/internal/store"
)

// Coordinator owns the single worker that decides when to run a sync pass
// and runs it, guarded by State's CAS so at most one pass is ever active.
type Coordinator struct {
	Client     *jira.Client
	Cache      *cache.Cache
	Store      *store.Store
	Workspaces map[string]config.WorkspaceConfig
	Budget     int

	State *State
}

// NewCoordinator builds a Coordinator with a fresh State for the given
// periodic interval.
func NewCoordinator(client *jira.Client, c *cache.Cache, st *store.Store, workspaces map[string]config.WorkspaceConfig, budget int, intervalSecs int64) *Coordinator {
	return &Coordinator{
		Client:     client,
		Cache:      c,
		Store:      st,
		Workspaces: workspaces,
		Budget:     budget,
		State:      NewState(intervalSecs),
	}
}

// Run is the coordinator's main loop: it sleeps 1s, then evaluates
// full-pending, manual-pending, and interval-elapsed in order. It returns
// when ctx is done.
func (co *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.tick()
		}
	}
}

func (co *Coordinator) tick() {
	now := time.Now().UTC()

	full := co.State.CheckAndClearManualFullTrigger()
	manual := false
	if !full {
		manual = co.State.CheckAndClearManualTrigger()
	}
	periodic := !full && !manual && co.State.intervalElapsed(now)

	if !full && !manual && !periodic {
		return
	}

	if !co.State.MarkSyncStart() {
		return
	}
	defer co.State.MarkSyncEnd()

	reason := "periodic"
	switch {
	case full:
		reason = "manual_full"
	case manual:
		reason = "manual"
	}

	if full {
		for name := range co.Workspaces {
			if err := co.Store.ClearSyncCursor(name); err != nil {
				logging.Warnf("sync coordinator: clear cursor for %s: %v", name, err)
			}
		}
	}

	result := SyncAll(context.Background(), co.Client, co.Cache, co.Store, co.Workspaces, co.Budget, full)

	completedAt := time.Now().UTC()
	co.State.MarkSyncComplete(completedAt)
	if full {
		co.State.MarkFullSyncComplete(completedAt)
	}

	logging.Infof("sync pass reason=%s cached=%d skipped=%d errors=%d",
		reason, result.Cached, result.Skipped, len(result.Errors))
	for _, e := range result.Errors {
		logging.Warnf("sync error: %s", e)
	}
}
