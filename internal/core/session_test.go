package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/channel/channeltest"
	"github.com/Guliveer/vitalis/console/internal/config"
	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSession(t *testing.T, mutate func(*config.Config)) (*Session, *channeltest.Dialer) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Commands.RatePerMinute = 0
	if mutate != nil {
		mutate(cfg)
	}
	dialer := &channeltest.Dialer{}
	s, err := New(cfg, Options{Dialer: dialer, Clock: channeltest.NewClock(), Now: time.Now}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, dialer
}

func TestIngestMetrics_AppendsAndAlerts(t *testing.T) {
	s, _ := newTestSession(t, nil)

	raised := s.IngestMetrics(models.MetricSnapshot{
		Timestamp: time.Now(),
		Metrics:   map[string]float64{"cpu": 95, "memory": 10, "gpu": 99},
	})

	require.Len(t, raised, 1)
	assert.Equal(t, models.SeverityCritical, raised[0].Severity)
	assert.Equal(t, 1, s.History.Len("cpu"))
	assert.Equal(t, 1, s.History.Len("memory"))
	assert.Equal(t, 1, s.History.Len("gpu"), "metrics without thresholds are still buffered")
	assert.Len(t, s.Alerts.ActiveAlerts(0), 1)
}

func TestLiveChannels_RouteIntoStores(t *testing.T) {
	s, dialer := newTestSession(t, func(c *config.Config) {
		c.Channels.Endpoints = map[string]string{
			models.ChannelAgentStatus: "ws://x/ws/agent-status",
			models.ChannelControl:     "ws://x/ws/control",
		}
	})

	_, err := s.Manager.Connect(models.ChannelAgentStatus)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return s.Manager.IsConnected(models.ChannelAgentStatus) }, waitFor, tick)

	conn := dialer.Conn(0)
	conn.Push(`{"type":"status_update","payload":{"agent":"monai_image_analysis","state":"processing","progress":40}}`)
	conn.Push(`{"type":"status_update","payload":{"agent":"monai_image_analysis","state":"ready","progress":100}}`)
	conn.Push(`{"type":"metric_snapshot","payload":{"metrics":{"disk":91}}}`)
	conn.Push(`{"type":"queue_status","payload":{"pending":2,"processing":1}}`)

	require.Eventually(t, func() bool {
		_, ok := s.QueueStatus()
		return ok
	}, waitFor, tick)

	st := s.Agents.Status("monai_image_analysis")
	assert.Equal(t, models.AgentReady, st.State)
	assert.Equal(t, 100, st.Progress)
	assert.Len(t, s.Agents.History("monai_image_analysis"), 2)

	require.Len(t, s.Alerts.ActiveAlerts(0), 1)
	assert.Equal(t, models.SeverityWarning, s.Alerts.ActiveAlerts(0)[0].Severity)

	q, _ := s.QueueStatus()
	assert.Equal(t, 2, q.Pending)
	assert.Equal(t, 1, q.Processing)
}

func TestStart_ConnectsUnlessAutoConnect(t *testing.T) {
	s, dialer := newTestSession(t, nil)
	s.Start()
	require.Eventually(t, func() bool { return dialer.Attempts() == len(config.ChannelNames) }, waitFor, tick)

	lazy, lazyDialer := newTestSession(t, func(c *config.Config) { c.Channels.AutoConnect = true })
	lazy.Start()
	assert.Equal(t, 0, lazyDialer.Attempts())
	lazy.Manager.Subscribe(models.KindStatusUpdate, func(string, models.Message) {})
	require.Eventually(t, func() bool { return lazyDialer.Attempts() == len(config.ChannelNames) }, waitFor, tick)
}

func TestDispatch_ThroughControlChannel(t *testing.T) {
	s, dialer := newTestSession(t, func(c *config.Config) {
		c.Channels.Endpoints = map[string]string{models.ChannelControl: "ws://x/ws/control"}
	})

	res, err := s.Dispatcher.Dispatch("ocr", models.ActionStart)
	require.NoError(t, err)
	assert.False(t, res.Attempted)
	assert.False(t, res.ChannelOpen)

	s.Start()
	require.Eventually(t, func() bool { return s.Manager.IsConnected(models.ChannelControl) }, waitFor, tick)

	res, err = s.Dispatcher.Dispatch("ocr", models.ActionStart)
	require.NoError(t, err)
	assert.True(t, res.Attempted)
	assert.True(t, res.ChannelOpen)
	assert.Len(t, dialer.Conn(0).Written(), 1)
}

type fakeSource struct {
	snap      models.MetricSnapshot
	events    []models.StatusEvent
	metricErr error
	agentErr  error
}

func (f fakeSource) FetchMetrics(context.Context) (models.MetricSnapshot, error) {
	return f.snap, f.metricErr
}

func (f fakeSource) FetchAgentStatus(context.Context) ([]models.StatusEvent, error) {
	return f.events, f.agentErr
}

func TestRefresh_SeedsThroughIngestPath(t *testing.T) {
	s, _ := newTestSession(t, nil)

	err := s.Refresh(context.Background(), fakeSource{
		snap:   models.MetricSnapshot{Metrics: map[string]float64{"memory": 96}},
		events: []models.StatusEvent{{Agent: "ocr", State: "idle"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, s.History.Len("memory"))
	assert.Len(t, s.Alerts.ActiveAlerts(0), 1)
	assert.Equal(t, models.AgentIdle, s.Agents.Status("ocr").State)
	assert.False(t, s.Agents.Status("ocr").LastUpdatedAt.IsZero())
}

func TestRefresh_PartialFailure(t *testing.T) {
	s, _ := newTestSession(t, nil)
	boom := errors.New("boom")

	err := s.Refresh(context.Background(), fakeSource{
		metricErr: boom,
		events:    []models.StatusEvent{{Agent: "ocr", State: "ready"}},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, models.AgentReady, s.Agents.Status("ocr").State, "agent status still applied")
}

func TestClose_Idempotent(t *testing.T) {
	s, _ := newTestSession(t, nil)
	s.Start()
	s.Close()
	s.Close()
	for _, info := range s.Manager.Channels() {
		assert.Equal(t, models.ChannelClosed, info.State)
	}
}

func TestRaisedAlerts_PublishedToSubscribers(t *testing.T) {
	s, _ := newTestSession(t, nil)

	var got []models.Message
	var sources []string
	unsubscribe := s.Manager.Subscribe(models.KindAlert, func(source string, msg models.Message) {
		sources = append(sources, source)
		got = append(got, msg)
	})
	defer unsubscribe()

	s.IngestMetrics(models.MetricSnapshot{Timestamp: time.Now(), Metrics: map[string]float64{"cpu": 75}})
	s.IngestMetrics(models.MetricSnapshot{Timestamp: time.Now(), Metrics: map[string]float64{"cpu": 76}})
	s.IngestMetrics(models.MetricSnapshot{Timestamp: time.Now(), Metrics: map[string]float64{"cpu": 95}})

	require.Len(t, got, 2, "the repeated warning is suppressed")
	assert.Equal(t, []string{AlertSource, AlertSource}, sources)
	first := got[0].(models.AlertMessage).Alert
	second := got[1].(models.AlertMessage).Alert
	assert.Equal(t, models.SeverityWarning, first.Severity)
	assert.Equal(t, models.SeverityCritical, second.Severity)
}
