// Package metrics holds process-wide counters for cache and remote-client
// activity plus a goroutine that periodically logs a snapshot.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Metrics is a set of monotonic counters safe for concurrent use. The zero
// value is ready to use.
type Metrics struct {
	CacheHits   atomic.Uint64
	CacheMisses atomic.Uint64
	StaleServed atomic.Uint64
	APIRequests atomic.Uint64
	Retries     atomic.Uint64
}

// New returns a ready-to-use Metrics instance.
func New() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncCacheHit()   { m.CacheHits.Add(1) }
func (m *Metrics) IncCacheMiss()  { m.CacheMisses.Add(1) }
func (m *Metrics) IncStale()      { m.StaleServed.Add(1) }
func (m *Metrics) IncAPIRequest() { m.APIRequests.Add(1) }
func (m *Metrics) IncRetry()      { m.Retries.Add(1) }

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	CacheHits, CacheMisses, StaleServed, APIRequests, Retries uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		CacheHits:   m.CacheHits.Load(),
		CacheMisses: m.CacheMisses.Load(),
		StaleServed: m.StaleServed.Load(),
		APIRequests: m.APIRequests.Load(),
		Retries:     m.Retries.Load(),
	}
}

// Logger is the function signature used to emit a snapshot line; swappable
// in tests.
type Logger func(line string)

// SpawnLogger starts a goroutine that logs a Snapshot every interval until
// stop is closed. lastSync, when non-nil, is consulted each tick to prefix
// the line with a human-readable "since last sync" duration.
func SpawnLogger(m *Metrics, interval time.Duration, lastSync func() *time.Time, log Logger, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s := m.Snapshot()
				since := "never"
				if lastSync != nil {
					if t := lastSync(); t != nil {
						since = humanize.Time(*t)
					}
				}
				log(formatSnapshot(s, since))
			}
		}
	}()
}

func formatSnapshot(s Snapshot, since string) string {
	return "metrics last_sync=" + since +
		" cache_hit=" + humanize.Comma(int64(s.CacheHits)) +
		" cache_miss=" + humanize.Comma(int64(s.CacheMisses)) +
		" stale_served=" + humanize.Comma(int64(s.StaleServed)) +
		" api_requests=" + humanize.Comma(int64(s.APIRequests)) +
		" retries=" + humanize.Comma(int64(s.Retries))
}
