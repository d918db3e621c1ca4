package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/finder"
	"github.com/tokenarb/cyclescan/internal/graph"
)

// CyclePublisher receives every cycle that replaces the latest-result
// slot. Implementations must tolerate being called from the searcher
// goroutine; failures are logged and swallowed.
type CyclePublisher interface {
	Publish(ctx context.Context, c domain.Cycle) error
}

// searcher periodically snapshots the shared graph and runs the cycle
// finder on the copy, so the write lock is never held across a search.
type searcher struct {
	g         *graph.CSR
	lock      *sync.RWMutex
	finder    *finder.Finder
	cfg       Config
	tracker   *tracker
	publisher CyclePublisher
	logger    *slog.Logger
}

func newSearcher(g *graph.CSR, lock *sync.RWMutex, cfg Config, tr *tracker, pub CyclePublisher, logger *slog.Logger) *searcher {
	return &searcher{
		g:         g,
		lock:      lock,
		finder:    finder.New(cfg.HopCap),
		cfg:       cfg,
		tracker:   tr,
		publisher: pub,
		logger:    logger.With(slog.String("component", "searcher")),
	}
}

// run searches on every interval tick until stop is closed, then
// performs one final search so callers observe any update the writer
// applied after the last tick.
func (s *searcher) run(ctx context.Context, stop <-chan struct{}) error {
	s.logger.Info("searcher started",
		slog.Int("hop_cap", s.cfg.HopCap),
		slog.Duration("search_interval", s.cfg.SearchInterval),
	)
	defer s.logger.Info("searcher stopped")

	ticker := time.NewTicker(s.cfg.SearchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.searchOnce(ctx)
		case <-stop:
			// The supervisor closes stop only after the writer has
			// drained, so this final pass observes every applied update.
			s.searchOnce(context.WithoutCancel(ctx))
			return nil
		}
	}
}

// searchOnce clones the weights under the read lock, releases it, and
// runs the finder on the snapshot.
func (s *searcher) searchOnce(ctx context.Context) {
	s.lock.RLock()
	snap := s.g.Snapshot()
	s.lock.RUnlock()

	cyc, found := s.finder.Find(snap)
	s.tracker.incSearches()
	if !found {
		return
	}

	cyc.ID = uuid.NewString()
	cyc.DetectedAt = time.Now().UTC()

	if !s.tracker.recordCycle(cyc) {
		return
	}
	s.logger.Info("profitable cycle detected",
		slog.String("cycle_id", cyc.ID),
		slog.Int("start", cyc.Start),
		slog.Int("hops", cyc.Hops),
		slog.Float64("profit", cyc.Profit),
		slog.Float64("log_cost", cyc.LogCost),
		slog.Any("edges", cyc.Edges),
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, cyc); err != nil {
			s.logger.Warn("cycle publish failed",
				slog.String("cycle_id", cyc.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
