package alert

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEngine(clock *fakeClock) *Engine {
	seq := 0
	return NewEngine(Options{
		Thresholds: models.DefaultThresholds(),
		Now:        clock.Now,
		NewID: func() string {
			seq++
			return fmt.Sprintf("alert-%d", seq)
		},
	}, zap.NewNop())
}

func sample(v float64) models.MetricSample {
	return models.MetricSample{Timestamp: time.Now(), Value: v}
}

func countBySeverity(alerts []models.Alert, sev models.Severity) int {
	n := 0
	for _, a := range alerts {
		if a.Severity == sev {
			n++
		}
	}
	return n
}

func TestEvaluate_Classification(t *testing.T) {
	tests := []struct {
		value float64
		want  models.Severity
	}{
		{10, ""},
		{69.9, ""},
		{70, models.SeverityWarning},
		{89.9, models.SeverityWarning},
		{90, models.SeverityCritical},
		{95, models.SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.value), func(t *testing.T) {
			e := newTestEngine(&fakeClock{t: time.Unix(1000, 0)})
			got := e.Evaluate(models.MetricCPU, sample(tt.value))
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Severity)
		})
	}
}

func TestEvaluate_CriticalTakesPrecedence(t *testing.T) {
	e := newTestEngine(&fakeClock{t: time.Unix(1000, 0)})

	got := e.Evaluate(models.MetricCPU, sample(95))
	require.NotNil(t, got)

	active := e.ActiveAlerts(0)
	assert.Equal(t, 1, countBySeverity(active, models.SeverityCritical))
	assert.Equal(t, 0, countBySeverity(active, models.SeverityWarning))
	assert.Equal(t, "95.0", got.ObservedValue)
	assert.Equal(t, models.MetricCPU, got.MetricName)
}

func TestEvaluate_UnknownMetricIgnored(t *testing.T) {
	e := newTestEngine(&fakeClock{t: time.Unix(1000, 0)})
	assert.Nil(t, e.Evaluate("gpu", sample(100)))
	assert.Equal(t, 0, e.Count())
}

func TestEvaluate_DeduplicatesUntilEscalation(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEngine(clock)

	require.NotNil(t, e.Evaluate(models.MetricCPU, sample(75)))
	clock.Advance(time.Minute)
	assert.Nil(t, e.Evaluate(models.MetricCPU, sample(80)), "repeat warning must be suppressed")
	assert.Len(t, e.ActiveAlerts(0), 1)

	clock.Advance(time.Minute)
	critical := e.Evaluate(models.MetricCPU, sample(93))
	require.NotNil(t, critical, "escalation must be emitted")

	active := e.ActiveAlerts(0)
	require.Len(t, active, 2)
	assert.Equal(t, models.SeverityCritical, active[0].Severity, "newest first")
	assert.Equal(t, models.SeverityWarning, active[1].Severity)

	clock.Advance(time.Minute)
	assert.Nil(t, e.Evaluate(models.MetricCPU, sample(97)), "repeat critical must be suppressed")
	assert.Nil(t, e.Evaluate(models.MetricCPU, sample(75)), "de-escalation must be suppressed")
	assert.Len(t, e.ActiveAlerts(0), 2)
}

func TestEvaluate_PerMetricDedup(t *testing.T) {
	e := newTestEngine(&fakeClock{t: time.Unix(1000, 0)})

	require.NotNil(t, e.Evaluate(models.MetricCPU, sample(75)))
	require.NotNil(t, e.Evaluate(models.MetricMemory, sample(85)))
	assert.Len(t, e.ActiveAlerts(0), 2)
}

func TestActiveAlerts_ExpiryWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEngine(clock)
	require.NotNil(t, e.Evaluate(models.MetricDisk, sample(90)))

	clock.Advance(4*time.Minute + 59*time.Second)
	assert.Len(t, e.ActiveAlerts(0), 1)

	clock.Advance(2 * time.Second)
	assert.Empty(t, e.ActiveAlerts(0))
	assert.Equal(t, 1, e.Prune())
	assert.Equal(t, 0, e.Prune())
}

func TestEvaluate_ReemitsAfterExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEngine(clock)

	first := e.Evaluate(models.MetricCPU, sample(75))
	require.NotNil(t, first)

	clock.Advance(5 * time.Minute)
	second := e.Evaluate(models.MetricCPU, sample(75))
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, e.ActiveAlerts(0), 1)
}

func TestActiveAlerts_DisplayCapKeepsState(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	e := newTestEngine(clock)
	for i := 0; i < 15; i++ {
		metric := fmt.Sprintf("queue-%d", i)
		e.SetThreshold(metric, models.Threshold{Warning: 1, Critical: 2})
		require.NotNil(t, e.Evaluate(metric, sample(1)))
		clock.Advance(time.Second)
	}

	view := e.ActiveAlerts(0)
	require.Len(t, view, DefaultDisplayLimit)
	assert.Equal(t, "queue-14", view[0].MetricName)
	assert.Equal(t, 15, e.Count())
	assert.Len(t, e.ActiveAlerts(100), 15)

	view[0].Message = "mutated"
	assert.NotEqual(t, "mutated", e.ActiveAlerts(1)[0].Message)
}

func TestOnAlert_Callback(t *testing.T) {
	e := newTestEngine(&fakeClock{t: time.Unix(1000, 0)})
	var got []models.Alert
	e.OnAlert(func(a models.Alert) { got = append(got, a) })

	e.Evaluate(models.MetricMemory, sample(96))
	e.Evaluate(models.MetricMemory, sample(97))

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityCritical, got[0].Severity)
}
