package pipeline

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/tokenarb/cyclescan/internal/domain"
	"github.com/tokenarb/cyclescan/internal/numeric"
)

// producer emits synthetic rate updates by jittering each edge's
// baseline rate within the configured bounds. Emissions come in bursts
// of up to maxCoalesce records followed by a randomized pause, so the
// writer sees both single records and full batches.
type producer struct {
	updates  chan<- domain.RateUpdate
	baseline []float64
	bounds   numeric.RateBounds
	cfg      Config
	rng      *rand.Rand
	logger   *slog.Logger
}

func newProducer(updates chan<- domain.RateUpdate, baseline []float64, cfg Config, logger *slog.Logger) *producer {
	return &producer{
		updates:  updates,
		baseline: baseline,
		bounds:   numeric.NewRateBounds(cfg.RateLo, cfg.RateHi),
		cfg:      cfg,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		logger:   logger.With(slog.String("component", "producer")),
	}
}

// run emits up to MaxUpdates records, suspending when the queue is
// full. It stops early when ctx is cancelled.
func (p *producer) run(ctx context.Context) error {
	edgeCount := len(p.baseline)
	if edgeCount == 0 || p.cfg.MaxUpdates <= 0 {
		return nil
	}

	p.logger.Info("producer started",
		slog.Int("max_updates", p.cfg.MaxUpdates),
		slog.Int("edge_count", edgeCount),
		slog.Float64("rate_jitter", p.cfg.RateJitter),
	)
	defer p.logger.Info("producer stopped")

	maxBurst := max(p.cfg.MaxCoalesce, 1)
	remaining := p.cfg.MaxUpdates

	for remaining > 0 {
		burst := 1 + p.rng.IntN(min(maxBurst, remaining))

		for i := 0; i < burst; i++ {
			edge := p.rng.IntN(edgeCount)
			jitter := 0.0
			if p.cfg.RateJitter > 0 {
				jitter = (p.rng.Float64()*2 - 1) * p.cfg.RateJitter
			}
			rate := p.bounds.Clamp(p.baseline[edge] * (1 + jitter))

			select {
			case p.updates <- domain.RateUpdate{EdgeIndex: edge, Rate: rate}:
			case <-ctx.Done():
				return nil
			}
		}

		remaining -= burst
		if remaining == 0 {
			break
		}

		if pause := p.pause(); pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return nil
			}
		}
	}
	return nil
}

// pause picks a random delay of up to twice the search interval, so
// bursts land on both sides of a search tick.
func (p *producer) pause() time.Duration {
	ceiling := 2 * p.cfg.SearchInterval
	if ceiling <= 0 {
		return 0
	}
	return time.Duration(p.rng.Int64N(int64(ceiling) + 1))
}
