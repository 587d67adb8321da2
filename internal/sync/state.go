package sync

import (
	"sync/atomic"
	"time"
)

// State holds the coordinator's shared transition flags. All fields are
// safe for concurrent access without an external lock.
type State struct {
	inProgress        atomic.Bool
	manualPending     atomic.Bool
	manualFullPending atomic.Bool
	initialStarted    atomic.Bool

	lastSyncEnd     atomic.Value // time.Time
	lastFullSyncEnd atomic.Value // time.Time

	intervalSecs int64
}

// NewState builds a State with the given periodic sync interval.
func NewState(intervalSecs int64) *State {
	return &State{intervalSecs: intervalSecs}
}

// MarkSyncStart CAS's in_progress false->true. Only the caller that wins
// may run a sync pass.
func (s *State) MarkSyncStart() bool {
	return s.inProgress.CompareAndSwap(false, true)
}

// MarkSyncEnd clears in_progress.
func (s *State) MarkSyncEnd() {
	s.inProgress.Store(false)
}

// MarkSyncComplete records the end time of a (successful) sync pass.
func (s *State) MarkSyncComplete(now time.Time) {
	s.lastSyncEnd.Store(now)
}

// MarkFullSyncComplete records the end time of a full-refresh pass, in
// addition to MarkSyncComplete.
func (s *State) MarkFullSyncComplete(now time.Time) {
	s.lastFullSyncEnd.Store(now)
}

// TriggerManual sets the manual-sync pending flag; idempotent.
func (s *State) TriggerManual() {
	s.manualPending.Store(true)
}

// TriggerManualFull sets the manual-full-refresh pending flag; idempotent.
func (s *State) TriggerManualFull() {
	s.manualFullPending.Store(true)
}

// CheckAndClearManualTrigger atomically reads and clears the manual flag,
// returning its prior value.
func (s *State) CheckAndClearManualTrigger() bool {
	return s.manualPending.Swap(false)
}

// CheckAndClearManualFullTrigger atomically reads and clears the manual
// full-refresh flag, returning its prior value.
func (s *State) CheckAndClearManualFullTrigger() bool {
	return s.manualFullPending.Swap(false)
}

// InProgress reports whether a sync pass is currently running.
func (s *State) InProgress() bool {
	return s.inProgress.Load()
}

// LastSyncEnd returns the last completed sync's end time, or nil if none.
func (s *State) LastSyncEnd() *time.Time {
	v, ok := s.lastSyncEnd.Load().(time.Time)
	if !ok {
		return nil
	}
	return &v
}

// LastFullSyncEnd returns the last completed full-refresh's end time, or
// nil if none.
func (s *State) LastFullSyncEnd() *time.Time {
	v, ok := s.lastFullSyncEnd.Load().(time.Time)
	if !ok {
		return nil
	}
	return &v
}

// SecondsUntilNextSync is max(0, interval-(now-last_sync_end)); 0 when no
// sync has ever completed.
func (s *State) SecondsUntilNextSync(now time.Time) int64 {
	last := s.LastSyncEnd()
	if last == nil {
		return 0
	}
	elapsed := int64(now.Sub(*last).Seconds())
	remaining := s.intervalSecs - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// intervalElapsed reports whether a periodic sync is due.
func (s *State) intervalElapsed(now time.Time) bool {
	return s.SecondsUntilNextSync(now) == 0
}

// RequestInitialSync triggers exactly one manual sync the first time it is
// called on this State, guarded by a boolean so repeated calls don't queue
// redundant triggers. The mount command calls it once at startup.
func (s *State) RequestInitialSync() {
	if s.initialStarted.CompareAndSwap(false, true) {
		s.TriggerManual()
	}
}
