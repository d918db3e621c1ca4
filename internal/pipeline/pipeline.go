// Package pipeline couples a jittering producer, a batching writer,
// and a periodic cycle searcher around one shared CSR graph. The graph
// sits behind a reader-writer lock: the writer is the only mutator and
// applies whole batches under the write lock, the searcher clones the
// weights under the read lock and searches the copy, so every search
// sees a self-consistent snapshot.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/graph"
)

// Config enumerates the pipeline knobs. New replaces a non-positive
// HopCap, SearchInterval, MaxCoalesce, ChannelCapacity, RateLo or RateHi
// with the defaults; the other fields are used as given, so a zero
// MaxUpdates means the synthetic producer emits nothing.
type Config struct {
	// HopCap bounds the cycle length the searcher will report.
	HopCap int

	// SearchInterval is the searcher cadence.
	SearchInterval time.Duration

	// CoalesceWindow is how long the writer waits for more records
	// after the first of a batch arrives.
	CoalesceWindow time.Duration

	// MaxCoalesce caps the records the writer drains in one batch.
	MaxCoalesce int

	// MaxUpdates is the synthetic producer's emission quota.
	MaxUpdates int

	// ChannelCapacity bounds the update queue; a full queue suspends
	// producers rather than dropping records.
	ChannelCapacity int

	// RateLo and RateHi bound every applied rate.
	RateLo float64
	RateHi float64

	// RateJitter is the relative amplitude of synthetic updates.
	RateJitter float64

	// Quantum is the linear tick size updates are snapped to.
	Quantum float64

	// EpsLog gates weight moves smaller than this many log units.
	EpsLog float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		HopCap:          6,
		SearchInterval:  250 * time.Millisecond,
		CoalesceWindow:  5 * time.Millisecond,
		MaxCoalesce:     16,
		MaxUpdates:      256,
		ChannelCapacity: 64,
		RateLo:          1e-9,
		RateHi:          1e9,
		RateJitter:      0.02,
		Quantum:         1e-9,
		EpsLog:          0,
	}
}

// UpdateSource is an additional producer of rate updates, e.g. a live
// WebSocket feed. Sources share the bounded queue with the synthetic
// producer and must stop when ctx is cancelled.
type UpdateSource interface {
	Run(ctx context.Context, out chan<- domain.RateUpdate) error
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithPublisher forwards every new best cycle to p.
func WithPublisher(p CyclePublisher) Option {
	return func(pl *Pipeline) { pl.publisher = p }
}

// WithSource adds an extra update source alongside the synthetic
// producer.
func WithSource(src UpdateSource) Option {
	return func(pl *Pipeline) { pl.sources = append(pl.sources, src) }
}

// Pipeline owns the shared graph and the task configuration. A
// Pipeline is single-use: construct, Run once, read the returned
// stats.
type Pipeline struct {
	g         *graph.CSR
	lock      sync.RWMutex
	baseline  []float64
	cfg       Config
	publisher CyclePublisher
	sources   []UpdateSource
	logger    *slog.Logger
}

// New creates a Pipeline over a freshly built graph. baseline holds
// the initial linear rate per global edge index; the synthetic
// producer jitters around it.
func New(g *graph.CSR, baseline []float64, cfg Config, logger *slog.Logger, opts ...Option) *Pipeline {
	def := DefaultConfig()
	if cfg.HopCap < 1 {
		cfg.HopCap = def.HopCap
	}
	if cfg.SearchInterval <= 0 {
		cfg.SearchInterval = def.SearchInterval
	}
	if cfg.MaxCoalesce < 1 {
		cfg.MaxCoalesce = def.MaxCoalesce
	}
	if cfg.ChannelCapacity < 1 {
		cfg.ChannelCapacity = def.ChannelCapacity
	}
	if cfg.RateLo <= 0 || cfg.RateHi <= 0 {
		cfg.RateLo, cfg.RateHi = def.RateLo, def.RateHi
	}

	p := &Pipeline{
		g:        g,
		baseline: baseline,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "pipeline")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run drives the pipeline to completion: producers emit until their
// quota or ctx cancellation, the writer drains the closed queue, and
// the searcher performs one final pass before the stats are returned.
// Join order is fixed: producers, then writer, then searcher.
func (p *Pipeline) Run(ctx context.Context) (Stats, error) {
	runID := uuid.NewString()
	tr := newTracker(runID)
	updates := make(chan domain.RateUpdate, p.cfg.ChannelCapacity)

	p.logger.Info("pipeline starting",
		slog.String("run_id", runID),
		slog.Int("tokens", p.g.NumTokens()),
		slog.Int("edges", p.g.NumEdges()),
		slog.Int("hop_cap", p.cfg.HopCap),
	)

	wr := newWriter(p.g, &p.lock, updates, p.cfg, tr, p.logger)
	writerDone := make(chan error, 1)
	go func() { writerDone <- wr.run() }()

	sr := newSearcher(p.g, &p.lock, p.cfg, tr, p.publisher, p.logger)
	stopSearch := make(chan struct{})
	searcherDone := make(chan error, 1)
	go func() { searcherDone <- sr.run(ctx, stopSearch) }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return newProducer(updates, p.baseline, p.cfg, p.logger).run(gctx)
	})
	for _, src := range p.sources {
		g.Go(func() error {
			if err := src.Run(gctx, updates); err != nil && gctx.Err() == nil {
				p.logger.Warn("update source stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	_ = g.Wait()
	close(updates)
	<-writerDone
	close(stopSearch)
	<-searcherDone

	stats := tr.snapshot()
	p.logger.Info("pipeline finished",
		slog.String("run_id", runID),
		slog.Uint64("searches_run", stats.SearchesRun),
		slog.Uint64("updates_applied", stats.UpdatesApplied),
		slog.Uint64("rejected_index", stats.RejectedIndex),
		slog.Uint64("rejected_nonfinite", stats.RejectedNonFinite),
		slog.Uint64("updates_clamped", stats.UpdatesClamped),
		slog.Bool("found_cycle", stats.LastCycle != nil),
	)
	return stats, nil
}
