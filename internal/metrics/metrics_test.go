package metrics

import "testing"

func TestCountersIndependent(t *testing.T) {
	m := New()
	m.IncCacheHit()
	m.IncCacheHit()
	m.IncCacheMiss()
	m.IncStale()
	m.IncAPIRequest()
	m.IncAPIRequest()
	m.IncAPIRequest()
	m.IncRetry()

	s := m.Snapshot()
	if s.CacheHits != 2 || s.CacheMisses != 1 || s.StaleServed != 1 || s.APIRequests != 3 || s.Retries != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestFormatSnapshotNeverSync(t *testing.T) {
	line := formatSnapshot(Snapshot{CacheHits: 5}, "never")
	if line == "" {
		t.Fatal("expected non-empty line")
	}
}
