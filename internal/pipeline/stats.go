package pipeline

import (
	"sync"

	"github.com/tokenarb/cyclescan/internal/domain"
)

// Stats is a point-in-time snapshot of the pipeline counters and the
// latest profitable cycle, if any. Counters are monotone while the
// pipeline runs.
type Stats struct {
	RunID             string
	SearchesRun       uint64
	UpdatesApplied    uint64
	RejectedIndex     uint64
	RejectedNonFinite uint64
	UpdatesClamped    uint64
	LastCycle         *domain.Cycle
}

// Dequeued returns the number of records the writer has taken off the
// queue: every dequeued record is applied or rejected, never silently
// dropped.
func (s Stats) Dequeued() uint64 {
	return s.UpdatesApplied + s.RejectedIndex + s.RejectedNonFinite
}

// tracker is the shared, mutex-guarded statistics object. The mutex is
// never held across a graph-lock acquisition.
type tracker struct {
	mu    sync.Mutex
	stats Stats
}

func newTracker(runID string) *tracker {
	return &tracker{stats: Stats{RunID: runID}}
}

func (t *tracker) addApplied(n uint64) {
	t.mu.Lock()
	t.stats.UpdatesApplied += n
	t.mu.Unlock()
}

func (t *tracker) addClamped(n uint64) {
	t.mu.Lock()
	t.stats.UpdatesClamped += n
	t.mu.Unlock()
}

func (t *tracker) rejectIndex() {
	t.mu.Lock()
	t.stats.RejectedIndex++
	t.mu.Unlock()
}

func (t *tracker) rejectNonFinite() {
	t.mu.Lock()
	t.stats.RejectedNonFinite++
	t.mu.Unlock()
}

func (t *tracker) incSearches() {
	t.mu.Lock()
	t.stats.SearchesRun++
	t.mu.Unlock()
}

// recordCycle stores c as the latest result unless the current holder
// is strictly better (fewer hops, or equal hops at lower cost). Ties go
// to the newer cycle so the slot reflects the freshest snapshot. It
// reports whether the slot changed.
func (t *tracker) recordCycle(c domain.Cycle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stats.LastCycle != nil && t.stats.LastCycle.Better(c) {
		return false
	}
	t.stats.LastCycle = &c
	return true
}

// snapshot copies the current stats. The returned cycle pointer refers
// to an immutable value.
func (t *tracker) snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
