package pipeline

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/graph"
	"github.com/tokenarb/cyclescan/internal/numeric"
)

// writer is the single consumer of the update queue. It coalesces
// records into bounded batches, validates and clamps them, runs each
// survivor through the numerical kernel, and applies the whole batch
// under one write-lock acquisition.
type writer struct {
	g       *graph.CSR
	lock    *sync.RWMutex
	updates <-chan domain.RateUpdate
	bounds  numeric.RateBounds
	cfg     Config
	tracker *tracker
	logger  *slog.Logger

	batch []domain.RateUpdate
}

func newWriter(g *graph.CSR, lock *sync.RWMutex, updates <-chan domain.RateUpdate, cfg Config, tr *tracker, logger *slog.Logger) *writer {
	return &writer{
		g:       g,
		lock:    lock,
		updates: updates,
		bounds:  numeric.NewRateBounds(cfg.RateLo, cfg.RateHi),
		cfg:     cfg,
		tracker: tr,
		batch:   make([]domain.RateUpdate, 0, max(cfg.MaxCoalesce, 1)),
		logger:  logger.With(slog.String("component", "writer")),
	}
}

// run loops until the queue is closed and the final batch has been
// drained. The supervisor closes the queue only after every producer
// has terminated, so blocking on the channel alone is the shutdown
// protocol.
func (w *writer) run() error {
	w.logger.Info("writer started",
		slog.Int("max_coalesce", w.cfg.MaxCoalesce),
		slog.Duration("coalesce_window", w.cfg.CoalesceWindow),
	)
	defer w.logger.Info("writer stopped")

	for w.nextBatch() {
		w.apply()
	}
	return nil
}

// nextBatch blocks for the first record, then drains up to
// MaxCoalesce-1 more until the coalesce window elapses. It reports
// false when the queue is closed and empty.
func (w *writer) nextBatch() bool {
	w.batch = w.batch[:0]

	first, ok := <-w.updates
	if !ok {
		return false
	}
	w.batch = append(w.batch, first)

	maxCoalesce := max(w.cfg.MaxCoalesce, 1)
	if maxCoalesce == 1 || w.cfg.CoalesceWindow <= 0 {
		return true
	}

	timer := time.NewTimer(w.cfg.CoalesceWindow)
	defer timer.Stop()
	for len(w.batch) < maxCoalesce {
		select {
		case u, ok := <-w.updates:
			if !ok {
				return true
			}
			w.batch = append(w.batch, u)
		case <-timer.C:
			return true
		}
	}
	return true
}

// apply validates the pending batch, clamps survivors into the rate
// bounds, and writes every surviving weight while holding the write
// lock, so a concurrent snapshot sees either none or all of the batch.
func (w *writer) apply() {
	edgeCount := w.g.NumEdges()

	survivors := w.batch[:0]
	var clamped uint64
	for _, u := range w.batch {
		if u.EdgeIndex < 0 || u.EdgeIndex >= edgeCount {
			w.tracker.rejectIndex()
			w.logger.Warn("dropped update with out-of-range edge index", slog.Int("edge_index", u.EdgeIndex))
			continue
		}
		if math.IsNaN(u.Rate) || math.IsInf(u.Rate, 0) || u.Rate <= 0 {
			w.tracker.rejectNonFinite()
			w.logger.Warn("dropped update with invalid rate", slog.Float64("rate", u.Rate))
			continue
		}
		if c := w.bounds.Clamp(u.Rate); c != u.Rate {
			clamped++
			u.Rate = c
		}
		survivors = append(survivors, u)
	}

	if len(survivors) == 0 {
		w.logger.Debug("batch had no valid updates")
		return
	}

	w.lock.Lock()
	for _, u := range survivors {
		// The graph stores -ln(rate); the kernel works on the log-rate
		// state, so flip signs at the boundary.
		curLog := -w.g.Weight(u.EdgeIndex)
		factor := u.Rate * math.Exp(w.g.Weight(u.EdgeIndex))
		if newLog, gated := numeric.Apply(curLog, factor, w.bounds, w.cfg.Quantum, w.cfg.EpsLog); !gated {
			w.g.SetWeight(u.EdgeIndex, -newLog)
		}
	}
	w.lock.Unlock()

	w.tracker.addApplied(uint64(len(survivors)))
	if clamped > 0 {
		w.tracker.addClamped(clamped)
	}
	w.logger.Debug("applied update batch",
		slog.Int("batch_size", len(w.batch)),
		slog.Int("applied", len(survivors)),
	)
}
