// Package scheduler implements the console's tick-based background work:
// local host sampling, periodic fallback refresh and alert pruning. The
// scheduler does not own any state; it drives a Target on every tick.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/core"
	"github.com/Guliveer/vitalis/console/internal/models"
)

// Target receives the scheduler's work. *core.Session implements it.
type Target interface {
	IngestMetrics(snap models.MetricSnapshot) []models.Alert
	Refresh(ctx context.Context, src core.Source) error
	PruneAlerts() int
}

// Sampler produces one snapshot of local host metrics.
type Sampler interface {
	Snapshot(ctx context.Context, now time.Time) models.MetricSnapshot
}

// Options selects which loops run. A nil Sampler or Source, or a
// non-positive interval, disables the corresponding loop.
type Options struct {
	Sampler         Sampler
	HostInterval    time.Duration
	Source          core.Source
	RefreshInterval time.Duration
	PruneInterval   time.Duration
	// Timeout bounds each sampling and refresh call.
	Timeout time.Duration
}

// Scheduler manages the periodic loops.
type Scheduler struct {
	target Target
	opts   Options
	logger *zap.Logger
}

// New creates a new Scheduler with the given target, options and logger.
func New(target Target, opts Options, logger *zap.Logger) *Scheduler {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Scheduler{
		target: target,
		opts:   opts,
		logger: logger,
	}
}

// ticker returns a ticker channel, or nil (which never fires) when disabled.
func ticker(enabled bool, d time.Duration) (<-chan time.Time, func()) {
	if !enabled || d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Start runs the loops until the context is cancelled. Sampling and refresh
// each run once immediately.
func (s *Scheduler) Start(ctx context.Context) {
	hostC, stopHost := ticker(s.opts.Sampler != nil, s.opts.HostInterval)
	refreshC, stopRefresh := ticker(s.opts.Source != nil, s.opts.RefreshInterval)
	pruneC, stopPrune := ticker(true, s.opts.PruneInterval)

	defer stopHost()
	defer stopRefresh()
	defer stopPrune()

	if hostC != nil {
		s.sample(ctx)
	}
	if s.opts.Source != nil {
		s.refresh(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-hostC:
			s.sample(ctx)
		case <-refreshC:
			s.refresh(ctx)
		case <-pruneC:
			if n := s.target.PruneAlerts(); n > 0 {
				s.logger.Debug("Pruned expired alerts", zap.Int("count", n))
			}
		}
	}
}

// sample collects host metrics with a timeout and ingests them.
func (s *Scheduler) sample(ctx context.Context) {
	sampleCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	snap := s.opts.Sampler.Snapshot(sampleCtx, time.Now().UTC())
	if len(snap.Metrics) == 0 {
		s.logger.Warn("Host sampling produced no metrics")
		return
	}
	raised := s.target.IngestMetrics(snap)
	s.logger.Debug("Sampled host metrics",
		zap.Int("metrics", len(snap.Metrics)),
		zap.Int("alerts", len(raised)))
}

// refresh runs one fallback pull. Failures are logged by the target.
func (s *Scheduler) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	_ = s.target.Refresh(refreshCtx, s.opts.Source)
}
