package manager

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/channel"
	"github.com/Guliveer/vitalis/console/internal/channel/channeltest"
	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type recordingRouter struct {
	mu      sync.Mutex
	status  []models.StatusEvent
	metrics []models.MetricSnapshot
	queue   []models.QueueStatus
}

func (r *recordingRouter) RouteStatus(_ string, ev models.StatusEvent) {
	r.mu.Lock()
	r.status = append(r.status, ev)
	r.mu.Unlock()
}

func (r *recordingRouter) RouteMetrics(_ string, snap models.MetricSnapshot) {
	r.mu.Lock()
	r.metrics = append(r.metrics, snap)
	r.mu.Unlock()
}

func (r *recordingRouter) RouteQueue(_ string, q models.QueueStatus) {
	r.mu.Lock()
	r.queue = append(r.queue, q)
	r.mu.Unlock()
}

func (r *recordingRouter) counts() (int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.status), len(r.metrics), len(r.queue)
}

func testConfig(autoConnect bool) Config {
	names := []string{
		models.ChannelAgentStatus,
		models.ChannelSystemMetrics,
		models.ChannelQueueStatus,
		models.ChannelControl,
	}
	cfg := Config{AutoConnect: autoConnect}
	for _, n := range names {
		cfg.Channels = append(cfg.Channels, channel.Config{
			Name:           n,
			Endpoint:       "ws://dashboard.test/ws/" + n,
			MaxRetries:     3,
			ReconnectDelay: time.Second,
		})
	}
	return cfg
}

func newTestManager(t *testing.T, autoConnect bool) (*Manager, *channeltest.Dialer, *recordingRouter) {
	t.Helper()
	dialer := &channeltest.Dialer{}
	router := &recordingRouter{}
	m, err := New(testConfig(autoConnect), dialer, channeltest.NewClock(), router, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, dialer, router
}

func waitConnected(t *testing.T, m *Manager, name string) {
	t.Helper()
	require.Eventually(t, func() bool { return m.IsConnected(name) }, waitFor, tick)
}

func TestNew_RejectsBadRegistry(t *testing.T) {
	dup := Config{Channels: []channel.Config{{Name: "a"}, {Name: "a"}}}
	_, err := New(dup, &channeltest.Dialer{}, nil, nil, zap.NewNop())
	assert.Error(t, err)

	unnamed := Config{Channels: []channel.Config{{Endpoint: "ws://x"}}}
	_, err = New(unnamed, &channeltest.Dialer{}, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestConnect_UnknownChannel(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	_, err := m.Connect("weather")
	assert.True(t, errors.Is(err, ErrUnknownChannel))
	assert.True(t, errors.Is(m.Disconnect("weather"), ErrUnknownChannel))
	assert.False(t, m.IsConnected("weather"))
	_, ok := m.State("weather")
	assert.False(t, ok)
}

func TestIsConnected_ReflectsOpenState(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	assert.False(t, m.IsConnected(models.ChannelAgentStatus))
	st, err := m.Connect(models.ChannelAgentStatus)
	require.NoError(t, err)
	assert.Equal(t, models.ChannelConnecting, st)
	waitConnected(t, m, models.ChannelAgentStatus)
	assert.False(t, m.IsConnected(models.ChannelSystemMetrics))

	require.NoError(t, m.Disconnect(models.ChannelAgentStatus))
	assert.False(t, m.IsConnected(models.ChannelAgentStatus))
	state, _ := m.State(models.ChannelAgentStatus)
	assert.Equal(t, models.ChannelClosed, state)
}

func TestSendCommand(t *testing.T) {
	m, dialer, _ := newTestManager(t, false)
	cmd := models.Command{TargetAgent: "ocr", Action: models.ActionStop, IssuedAt: time.Unix(10, 0).UTC()}

	assert.False(t, m.SendCommand("weather", cmd), "unknown channel")
	assert.False(t, m.SendCommand(models.ChannelControl, cmd), "closed channel")
	assert.Equal(t, 0, dialer.TotalWrites())

	_, err := m.Connect(models.ChannelControl)
	require.NoError(t, err)
	waitConnected(t, m, models.ChannelControl)
	require.True(t, m.SendCommand(models.ChannelControl, cmd))

	written := dialer.Conn(0).Written()
	require.Len(t, written, 1)
	var frame struct {
		Type    string         `json:"type"`
		Payload models.Command `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(written[0], &frame))
	assert.Equal(t, "command", frame.Type)
	assert.Equal(t, cmd, frame.Payload)
}

func TestSendCommand_ReconnectingChannel(t *testing.T) {
	m, dialer, _ := newTestManager(t, false)
	cmd := models.Command{TargetAgent: "ocr", Action: models.ActionRestart, IssuedAt: time.Unix(20, 0).UTC()}

	_, err := m.Connect(models.ChannelControl)
	require.NoError(t, err)
	waitConnected(t, m, models.ChannelControl)
	require.True(t, m.SendCommand(models.ChannelControl, cmd))
	writes := dialer.TotalWrites()

	dialer.SetFailing(true)
	dialer.Conn(0).PeerDrop()
	require.Eventually(t, func() bool {
		st, _ := m.State(models.ChannelControl)
		return st == models.ChannelReconnecting
	}, waitFor, tick)

	assert.False(t, m.SendCommand(models.ChannelControl, cmd))
	assert.False(t, m.IsConnected(models.ChannelControl))
	assert.Equal(t, writes, dialer.TotalWrites())
}

func TestPublish_DeliversWithoutRouting(t *testing.T) {
	m, _, router := newTestManager(t, false)

	var got []string
	unsubscribe := m.Subscribe(models.KindAlert, func(source string, msg models.Message) {
		got = append(got, source+":"+msg.(models.AlertMessage).Alert.MetricName)
	})
	m.Publish("alerts", models.AlertMessage{Alert: models.Alert{MetricName: "disk"}})
	unsubscribe()
	m.Publish("alerts", models.AlertMessage{Alert: models.Alert{MetricName: "cpu"}})

	assert.Equal(t, []string{"alerts:disk"}, got)
	s, mt, q := router.counts()
	assert.Zero(t, s+mt+q)
}

func TestRouting_ByKind(t *testing.T) {
	m, dialer, router := newTestManager(t, false)

	var (
		mu       sync.Mutex
		received []models.MessageKind
	)
	unsubscribe := m.Subscribe(models.KindQueueStatus, func(_ string, msg models.Message) {
		mu.Lock()
		received = append(received, msg.Kind())
		mu.Unlock()
	})

	_, err := m.Connect(models.ChannelSystemMetrics)
	require.NoError(t, err)
	waitConnected(t, m, models.ChannelSystemMetrics)

	conn := dialer.Conn(0)
	conn.Push(`{"type":"status_update","payload":{"agent":"ocr","state":"ready","progress":100}}`)
	conn.Push(`{"type":"metric_snapshot","payload":{"metrics":{"cpu":50}}}`)
	conn.Push(`{"type":"queue_status","payload":{"pending":3}}`)
	conn.Push(`{"type":"command_ack","payload":{"agent":"ocr","action":"stop","ok":true}}`)

	require.Eventually(t, func() bool {
		s, mt, q := router.counts()
		return s == 1 && mt == 1 && q == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, waitFor, tick)

	unsubscribe()
	unsubscribe()
	conn.Push(`{"type":"queue_status","payload":{"pending":4}}`)
	require.Eventually(t, func() bool {
		_, _, q := router.counts()
		return q == 2
	}, waitFor, tick)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []models.MessageKind{models.KindQueueStatus}, received)
}

func TestSubscribe_AutoConnect(t *testing.T) {
	m, dialer, _ := newTestManager(t, true)
	assert.Equal(t, 0, dialer.Attempts())

	m.Subscribe(models.KindStatusUpdate, func(string, models.Message) {})
	for _, info := range m.Channels() {
		waitConnected(t, m, info.Name)
	}
	assert.Equal(t, 4, dialer.Attempts())

	m.Subscribe(models.KindMetricSnapshot, func(string, models.Message) {})
	assert.Equal(t, 4, dialer.Attempts(), "only the first subscription connects")
}

func TestDisconnectAll_Idempotent(t *testing.T) {
	m, _, _ := newTestManager(t, false)
	m.ConnectAll()
	for _, info := range m.Channels() {
		waitConnected(t, m, info.Name)
	}

	m.DisconnectAll()
	m.DisconnectAll()
	for _, info := range m.Channels() {
		assert.Equal(t, models.ChannelClosed, info.State)
	}
}

func TestChannels_SortedView(t *testing.T) {
	m, _, _ := newTestManager(t, false)

	infos := m.Channels()
	require.Len(t, infos, 4)
	assert.Equal(t, models.ChannelAgentStatus, infos[0].Name)
	assert.Equal(t, models.ChannelSystemMetrics, infos[3].Name)
	assert.Equal(t, 3, infos[0].MaxRetries)
}
