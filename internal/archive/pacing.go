package archive

import "sync"

// ForbiddenTracker counts forbidden/rate-limited responses per legislature
// and reports when a legislature should be abandoned for the rest of the run.
// Item fetches within one work unit may run concurrently, so the counters are
// guarded.
type ForbiddenTracker struct {
	mu        sync.Mutex
	threshold int
	counts    map[Legislature]int
	abandoned map[Legislature]struct{}
}

// NewForbiddenTracker builds a tracker that abandons a legislature once
// threshold forbidden responses were seen for it.
func NewForbiddenTracker(threshold int) *ForbiddenTracker {
	if threshold <= 0 {
		threshold = 3
	}
	return &ForbiddenTracker{
		threshold: threshold,
		counts:    make(map[Legislature]int),
		abandoned: make(map[Legislature]struct{}),
	}
}

// IsAbandoned reports whether the legislature crossed the threshold.
func (t *ForbiddenTracker) IsAbandoned(leg Legislature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.abandoned[leg]
	return ok
}

// MarkForbidden records one forbidden response and returns true once the
// legislature is abandoned.
func (t *ForbiddenTracker) MarkForbidden(leg Legislature) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, done := t.abandoned[leg]; done {
		return true
	}
	t.counts[leg]++
	if t.counts[leg] >= t.threshold {
		t.abandoned[leg] = struct{}{}
		return true
	}
	return false
}
