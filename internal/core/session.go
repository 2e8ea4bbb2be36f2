// Package core composes the telemetry client: the channel registry, the
// metric history, the alert engine, the agent status aggregator and the
// command dispatcher. A Session lives for one dashboard session; nothing it
// holds outlives Close.
package core

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Guliveer/vitalis/console/internal/agents"
	"github.com/Guliveer/vitalis/console/internal/alert"
	"github.com/Guliveer/vitalis/console/internal/buffer"
	"github.com/Guliveer/vitalis/console/internal/channel"
	"github.com/Guliveer/vitalis/console/internal/config"
	"github.com/Guliveer/vitalis/console/internal/dispatch"
	"github.com/Guliveer/vitalis/console/internal/manager"
	"github.com/Guliveer/vitalis/console/internal/models"
)

// AlertSource is the source name attached to alerts published to subscribers.
const AlertSource = "alerts"

// Source is a one-shot provider of current state, used to seed the session
// before the live channels deliver their first push and for manual refresh.
type Source interface {
	FetchMetrics(ctx context.Context) (models.MetricSnapshot, error)
	FetchAgentStatus(ctx context.Context) ([]models.StatusEvent, error)
}

// Session owns every collaborator of the telemetry core.
type Session struct {
	cfg    *config.Config
	logger *zap.Logger
	now    func() time.Time

	History    *buffer.Buffer
	Alerts     *alert.Engine
	Agents     *agents.Aggregator
	Manager    *manager.Manager
	Dispatcher *dispatch.Dispatcher

	// ingestMu serializes every mutation so that appending a sample and
	// evaluating it for alerts happen as one step.
	ingestMu sync.Mutex

	queueMu  sync.RWMutex
	queue    models.QueueStatus
	hasQueue bool

	closeOnce sync.Once
}

// Options carries injectable dependencies. Zero values select production defaults.
type Options struct {
	Dialer channel.Dialer
	Clock  channel.Clock
	Now    func() time.Time
}

// New builds a session from configuration. Channels are created closed.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Dialer == nil {
		opts.Dialer = channel.NewWSDialer(cfg.Channels.DialTimeout.Duration)
	}
	if opts.Clock == nil {
		opts.Clock = channel.RealClock()
	}
	if opts.Now == nil {
		opts.Now = opts.Clock.Now
	}

	s := &Session{
		cfg:     cfg,
		logger:  logger,
		now:     opts.Now,
		History: buffer.New(cfg.Metrics.BufferCapacity, logger),
		Agents:  agents.New(cfg.Agents.HistorySize, logger),
		Alerts: alert.NewEngine(alert.Options{
			Thresholds:   cfg.Metrics.Thresholds,
			Retention:    cfg.Alerts.Retention.Duration,
			DisplayLimit: cfg.Alerts.DisplayLimit,
			Now:          opts.Now,
		}, logger),
	}

	mgr, err := manager.New(manager.Config{
		Channels:    channelConfigs(cfg.Channels),
		AutoConnect: cfg.Channels.AutoConnect,
	}, opts.Dialer, opts.Clock, s, logger)
	if err != nil {
		return nil, err
	}
	s.Manager = mgr

	var limit rate.Limit
	if cfg.Commands.RatePerMinute > 0 {
		limit = rate.Limit(cfg.Commands.RatePerMinute / 60)
	}
	s.Dispatcher = dispatch.New(mgr, dispatch.Options{
		Channel: cfg.Channels.Control,
		Rate:    limit,
		Burst:   cfg.Commands.Burst,
		Now:     opts.Now,
	}, logger)

	s.Alerts.OnAlert(func(a models.Alert) {
		mgr.Publish(AlertSource, models.AlertMessage{Alert: a})
	})

	mgr.OnStateChange(func(name string, state models.ChannelState) {
		logger.Debug("Channel state changed",
			zap.String("channel", name),
			zap.String("state", string(state)))
	})

	return s, nil
}

// channelConfigs expands the shared reconnect policy over every endpoint,
// in name order.
func channelConfigs(cc config.ChannelsConfig) []channel.Config {
	names := make([]string, 0, len(cc.Endpoints))
	for name := range cc.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]channel.Config, 0, len(names))
	for _, name := range names {
		out = append(out, channel.Config{
			Name:              name,
			Endpoint:          cc.Endpoints[name],
			MaxRetries:        cc.MaxRetries,
			ReconnectDelay:    cc.ReconnectDelay.Duration,
			MaxReconnectDelay: cc.MaxReconnectDelay.Duration,
			DialTimeout:       cc.DialTimeout.Duration,
		})
	}
	return out
}

// Start opens the live channels. With auto-connect configured the channels
// stay closed until the first subscriber arrives.
func (s *Session) Start() {
	if s.cfg.Channels.AutoConnect {
		s.logger.Info("Channels will connect on first subscription")
		return
	}
	s.Manager.ConnectAll()
}

// Close tears down every channel. It is safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.Manager.Close()
		s.logger.Info("Session closed")
	})
}

// IngestMetrics appends every value in the snapshot to its series and
// evaluates it for alerts. Metrics are processed in name order.
func (s *Session) IngestMetrics(snap models.MetricSnapshot) []models.Alert {
	if snap.Timestamp.IsZero() {
		snap.Timestamp = s.now()
	}
	names := make([]string, 0, len(snap.Metrics))
	for name := range snap.Metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	s.ingestMu.Lock()
	defer s.ingestMu.Unlock()

	var raised []models.Alert
	for _, name := range names {
		sample := models.MetricSample{Timestamp: snap.Timestamp, Value: snap.Metrics[name]}
		s.History.Append(name, sample)
		if a := s.Alerts.Evaluate(name, sample); a != nil {
			raised = append(raised, *a)
		}
	}
	return raised
}

// IngestStatus applies a status event. Invalid events are logged and dropped.
func (s *Session) IngestStatus(ev models.StatusEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}

	s.ingestMu.Lock()
	err := s.Agents.Apply(ev)
	s.ingestMu.Unlock()

	if err != nil {
		s.logger.Warn("Dropping invalid status event", zap.Error(err))
	}
}

// IngestQueue records the latest queue counts.
func (s *Session) IngestQueue(q models.QueueStatus) {
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = s.now()
	}
	s.queueMu.Lock()
	s.queue = q
	s.hasQueue = true
	s.queueMu.Unlock()
}

// QueueStatus returns the latest queue counts, if any were received.
func (s *Session) QueueStatus() (models.QueueStatus, bool) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()
	return s.queue, s.hasQueue
}

// RouteStatus implements manager.Router.
func (s *Session) RouteStatus(_ string, ev models.StatusEvent) { s.IngestStatus(ev) }

// RouteMetrics implements manager.Router.
func (s *Session) RouteMetrics(_ string, snap models.MetricSnapshot) { s.IngestMetrics(snap) }

// RouteQueue implements manager.Router.
func (s *Session) RouteQueue(_ string, q models.QueueStatus) { s.IngestQueue(q) }

// PruneAlerts drops expired alerts and returns how many were removed.
func (s *Session) PruneAlerts() int { return s.Alerts.Prune() }

// Refresh pulls current metrics and agent status from src and feeds them
// through the same ingest path as live messages. Both fetches are attempted;
// the returned error joins whichever failed.
func (s *Session) Refresh(ctx context.Context, src Source) error {
	var errs []error

	snap, err := src.FetchMetrics(ctx)
	if err != nil {
		errs = append(errs, err)
	} else if len(snap.Metrics) > 0 {
		s.IngestMetrics(snap)
	}

	events, err := src.FetchAgentStatus(ctx)
	if err != nil {
		errs = append(errs, err)
	} else {
		for _, ev := range events {
			s.IngestStatus(ev)
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Warn("Refresh incomplete", zap.Error(err))
		return err
	}
	s.logger.Debug("Refreshed from pull endpoint",
		zap.Int("metrics", len(snap.Metrics)),
		zap.Int("agents", len(events)))
	return nil
}
