// Package alert derives operator-facing alerts from streamed metric samples.
//
// Each sample for a metric with a configured threshold is compared against the
// critical boundary first and then the warning boundary. A new alert for a
// metric is suppressed while an unexpired alert of the same or higher severity
// exists for it; an escalation to a higher severity is always emitted. Alerts
// expire a fixed retention window after creation regardless of whether the
// underlying condition has cleared.
package alert

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	// DefaultRetention is how long an alert stays active after creation.
	DefaultRetention = 5 * time.Minute

	// DefaultDisplayLimit caps ActiveAlerts when the caller passes no limit.
	DefaultDisplayLimit = 10
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	Thresholds   map[string]models.Threshold
	Retention    time.Duration
	DisplayLimit int

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

// Engine evaluates samples and holds the active alert set.
type Engine struct {
	retention    time.Duration
	displayLimit int
	now          func() time.Time
	newID        func() string
	logger       *zap.Logger

	mu         sync.RWMutex
	thresholds map[string]models.Threshold
	alerts     []models.Alert // creation order, oldest first
	onAlert    func(models.Alert)
}

// NewEngine creates an alert engine.
func NewEngine(opts Options, logger *zap.Logger) *Engine {
	e := &Engine{
		retention:    opts.Retention,
		displayLimit: opts.DisplayLimit,
		now:          opts.Now,
		newID:        opts.NewID,
		logger:       logger,
		thresholds:   make(map[string]models.Threshold, len(opts.Thresholds)),
	}
	if e.retention <= 0 {
		e.retention = DefaultRetention
	}
	if e.displayLimit <= 0 {
		e.displayLimit = DefaultDisplayLimit
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	for name, th := range opts.Thresholds {
		e.thresholds[name] = th
	}
	return e
}

// OnAlert registers a callback invoked for each newly created alert.
// The callback runs with the engine unlocked.
func (e *Engine) OnAlert(fn func(models.Alert)) {
	e.mu.Lock()
	e.onAlert = fn
	e.mu.Unlock()
}

// SetThreshold installs or replaces the threshold for a metric.
func (e *Engine) SetThreshold(metric string, th models.Threshold) {
	e.mu.Lock()
	e.thresholds[metric] = th
	e.mu.Unlock()
}

// Threshold returns the configured threshold for a metric.
func (e *Engine) Threshold(metric string) (models.Threshold, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	th, ok := e.thresholds[metric]
	return th, ok
}

// classify maps a value to the highest severity boundary it meets or exceeds.
func classify(th models.Threshold, value float64) (models.Severity, float64, bool) {
	switch {
	case value >= th.Critical:
		return models.SeverityCritical, th.Critical, true
	case value >= th.Warning:
		return models.SeverityWarning, th.Warning, true
	default:
		return "", 0, false
	}
}

// Evaluate checks one sample and returns the alert it produced, or nil when the
// sample is below both boundaries, the metric has no threshold, or the alert
// was deduplicated. Expired alerts are pruned on every call.
func (e *Engine) Evaluate(metric string, sample models.MetricSample) *models.Alert {
	e.mu.Lock()
	now := e.now()
	e.pruneLocked(now)

	th, ok := e.thresholds[metric]
	if !ok {
		e.mu.Unlock()
		return nil
	}
	severity, boundary, crossed := classify(th, sample.Value)
	if !crossed {
		e.mu.Unlock()
		return nil
	}

	for _, a := range e.alerts {
		if a.MetricName == metric && a.Severity.Rank() >= severity.Rank() {
			e.mu.Unlock()
			return nil
		}
	}

	alert := models.Alert{
		ID:            e.newID(),
		MetricName:    metric,
		Severity:      severity,
		Message:       fmt.Sprintf("%s %s threshold crossed: %.1f >= %.1f", metric, severity, sample.Value, boundary),
		ObservedValue: strconv.FormatFloat(sample.Value, 'f', 1, 64),
		CreatedAt:     now,
	}
	e.alerts = append(e.alerts, alert)
	fn := e.onAlert
	e.mu.Unlock()

	e.logger.Info("Alert raised",
		zap.String("id", alert.ID),
		zap.String("metric", metric),
		zap.String("severity", string(severity)),
		zap.Float64("value", sample.Value))

	if fn != nil {
		fn(alert)
	}
	return &alert
}

// Prune drops expired alerts and returns how many were removed.
func (e *Engine) Prune() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pruneLocked(e.now())
}

// pruneLocked filters alerts purely by age. Must be called with e.mu held.
func (e *Engine) pruneLocked(now time.Time) int {
	kept := e.alerts[:0]
	for _, a := range e.alerts {
		if e.live(a, now) {
			kept = append(kept, a)
		}
	}
	removed := len(e.alerts) - len(kept)
	for i := len(kept); i < len(e.alerts); i++ {
		e.alerts[i] = models.Alert{}
	}
	e.alerts = kept
	return removed
}

func (e *Engine) live(a models.Alert, now time.Time) bool {
	return now.Sub(a.CreatedAt) < e.retention
}

// ActiveAlerts returns unexpired alerts newest first, capped at limit.
// A non-positive limit selects the configured display limit. The cap only
// shapes the returned view; older alerts remain in the engine until they expire.
func (e *Engine) ActiveAlerts(limit int) []models.Alert {
	if limit <= 0 {
		limit = e.displayLimit
	}

	e.mu.RLock()
	now := e.now()
	out := make([]models.Alert, 0, min(limit, len(e.alerts)))
	for i := len(e.alerts) - 1; i >= 0 && len(out) < limit; i-- {
		if e.live(e.alerts[i], now) {
			out = append(out, e.alerts[i])
		}
	}
	e.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Count returns the number of unexpired alerts held.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	n := 0
	for _, a := range e.alerts {
		if e.live(a, now) {
			n++
		}
	}
	return n
}
