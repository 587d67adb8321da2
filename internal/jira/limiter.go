package jira

import "sync"

// limiter bounds in-flight requests across all goroutines: acquire blocks
// while in_flight >= max, then increments; release decrements and wakes one
// waiter. Release must run regardless of the request's outcome.
type limiter struct {
	mu       sync.Mutex
	cond     *sync.Cond
	max      int
	inFlight int
}

func newLimiter(max int) *limiter {
	if max < 1 {
		max = 1
	}
	l := &limiter{max: max}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *limiter) acquire() func() {
	l.mu.Lock()
	for l.inFlight >= l.max {
		l.cond.Wait()
	}
	l.inFlight++
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.inFlight--
			l.cond.Signal()
			l.mu.Unlock()
		})
	}
}
