package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Sampler reports values that are cheaper to poll than to track on every change.
type Sampler interface {
	Len() int
}

// Aggregator periodically copies sampled values into gauges.
type Aggregator struct {
	metrics    *Metrics
	identities Sampler
	logger     *slog.Logger
	interval   time.Duration
	done       chan struct{}
}

func NewAggregator(m *Metrics, identities Sampler, logger *slog.Logger, interval time.Duration) *Aggregator {
	if interval == 0 {
		interval = 15 * time.Second
	}

	return &Aggregator{
		metrics:    m,
		identities: identities,
		logger:     logger.With("component", "metrics_aggregator"),
		interval:   interval,
		done:       make(chan struct{}),
	}
}

// Start samples once immediately, then on every tick until ctx is done or
// Stop is called.
func (a *Aggregator) Start(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.Info("metrics aggregator started", "interval", a.interval)
	a.sample()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("metrics aggregator stopped")
			return
		case <-a.done:
			a.logger.Info("metrics aggregator stopped")
			return
		case <-ticker.C:
			a.sample()
		}
	}
}

func (a *Aggregator) Stop() {
	close(a.done)
}

func (a *Aggregator) sample() {
	n := a.identities.Len()
	a.metrics.SetIdentities(n)
	a.logger.Debug("sampled gauges", "identities", n)
}
