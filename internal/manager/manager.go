// Package manager owns the named set of live channels and presents a uniform
// connect/disconnect/send API independent of the transport. Inbound messages
// from every channel are routed by kind to the session's stores and then to
// any generic subscribers.
package manager

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/channel"
	"github.com/Guliveer/vitalis/console/internal/models"
)

// ErrUnknownChannel is returned for channel names not in the registry.
var ErrUnknownChannel = errors.New("unknown channel")

// Router receives routed messages. Implementations must not block.
type Router interface {
	RouteStatus(channel string, ev models.StatusEvent)
	RouteMetrics(channel string, snap models.MetricSnapshot)
	RouteQueue(channel string, q models.QueueStatus)
}

// Subscriber receives every message of the kind it subscribed to.
type Subscriber func(channel string, msg models.Message)

// Config describes the channel registry.
type Config struct {
	Channels []channel.Config

	// AutoConnect connects every channel on the first Subscribe call.
	AutoConnect bool
}

// Manager is the registry of live channels.
type Manager struct {
	channels    map[string]*channel.Channel
	names       []string
	router      Router
	autoConnect bool
	logger      *zap.Logger

	mu            sync.RWMutex
	subs          map[models.MessageKind]map[uint64]Subscriber
	nextSub       uint64
	autoConnected bool
	closed        bool
}

// New builds the registry. Channel names must be unique and non-empty.
// Channels start closed.
func New(cfg Config, dialer channel.Dialer, clock channel.Clock, router Router, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		channels:    make(map[string]*channel.Channel, len(cfg.Channels)),
		router:      router,
		autoConnect: cfg.AutoConnect,
		logger:      logger,
		subs:        make(map[models.MessageKind]map[uint64]Subscriber),
	}
	for _, cc := range cfg.Channels {
		if cc.Name == "" {
			return nil, fmt.Errorf("channel with endpoint %q has no name", cc.Endpoint)
		}
		if _, dup := m.channels[cc.Name]; dup {
			return nil, fmt.Errorf("duplicate channel %q", cc.Name)
		}
		ch := channel.New(cc, dialer, clock, logger)
		ch.SetHandler(m.handle)
		m.channels[cc.Name] = ch
		m.names = append(m.names, cc.Name)
	}
	sort.Strings(m.names)
	return m, nil
}

func (m *Manager) lookup(name string) (*channel.Channel, error) {
	ch, ok := m.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Connect starts connecting the named channel and returns its state.
func (m *Manager) Connect(name string) (models.ChannelState, error) {
	ch, err := m.lookup(name)
	if err != nil {
		return "", err
	}
	return ch.Connect(), nil
}

// ConnectAll connects every registered channel.
func (m *Manager) ConnectAll() {
	for _, name := range m.names {
		m.channels[name].Connect()
	}
}

// Disconnect closes the named channel.
func (m *Manager) Disconnect(name string) error {
	ch, err := m.lookup(name)
	if err != nil {
		return err
	}
	ch.Disconnect()
	return nil
}

// DisconnectAll closes every channel. It is safe to call repeatedly.
func (m *Manager) DisconnectAll() {
	for _, name := range m.names {
		m.channels[name].Disconnect()
	}
}

// Close tears the registry down: all channels are closed and subscribers dropped.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.subs = make(map[models.MessageKind]map[uint64]Subscriber)
	m.mu.Unlock()
	m.DisconnectAll()
}

// IsConnected reports whether the named channel is open.
func (m *Manager) IsConnected(name string) bool {
	ch, ok := m.channels[name]
	return ok && ch.State() == models.ChannelOpen
}

// State returns the named channel's state.
func (m *Manager) State(name string) (models.ChannelState, bool) {
	ch, ok := m.channels[name]
	if !ok {
		return "", false
	}
	return ch.State(), true
}

// Channels returns a view of every channel sorted by name.
func (m *Manager) Channels() []models.ChannelInfo {
	out := make([]models.ChannelInfo, 0, len(m.names))
	for _, name := range m.names {
		out = append(out, m.channels[name].Info())
	}
	return out
}

// OnStateChange registers a listener on every channel.
func (m *Manager) OnStateChange(fn channel.StateListener) {
	for _, name := range m.names {
		m.channels[name].OnStateChange(fn)
	}
}

// SendCommand writes a command frame on the named channel. It returns false
// when the channel is unknown or not open, without writing anything.
func (m *Manager) SendCommand(name string, cmd models.Command) bool {
	ch, ok := m.channels[name]
	if !ok {
		m.logger.Warn("Command for unknown channel", zap.String("channel", name))
		return false
	}
	if ch.State() != models.ChannelOpen {
		return false
	}
	frame, err := models.EncodeCommand(cmd)
	if err != nil {
		m.logger.Error("Failed to encode command", zap.Error(err))
		return false
	}
	return ch.Send(frame)
}

// Subscribe registers fn for messages of the given kind and returns a
// function that removes the subscription. With AutoConnect set, the first
// subscription connects every channel.
func (m *Manager) Subscribe(kind models.MessageKind, fn Subscriber) (unsubscribe func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return func() {}
	}
	id := m.nextSub
	m.nextSub++
	if m.subs[kind] == nil {
		m.subs[kind] = make(map[uint64]Subscriber)
	}
	m.subs[kind][id] = fn
	connect := m.autoConnect && !m.autoConnected
	if connect {
		m.autoConnected = true
	}
	m.mu.Unlock()

	if connect {
		m.logger.Info("Auto-connecting channels on first subscription")
		m.ConnectAll()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs[kind], id)
			m.mu.Unlock()
		})
	}
}

// handle is installed as every channel's message handler.
func (m *Manager) handle(name string, msg models.Message) {
	switch msg := msg.(type) {
	case models.StatusMessage:
		if m.router != nil {
			m.router.RouteStatus(name, msg.Event)
		}
	case models.MetricMessage:
		if m.router != nil {
			m.router.RouteMetrics(name, msg.Snapshot)
		}
	case models.QueueMessage:
		if m.router != nil {
			m.router.RouteQueue(name, msg.Status)
		}
	case models.AckMessage:
		m.logger.Info("Command acknowledged",
			zap.String("channel", name),
			zap.String("agent", msg.Ack.Agent),
			zap.String("action", string(msg.Ack.Action)),
			zap.Bool("ok", msg.Ack.OK))
	default:
		m.logger.Warn("Dropping unroutable message",
			zap.String("channel", name),
			zap.String("kind", string(msg.Kind())))
		return
	}
	m.Publish(name, msg)
}

// Publish delivers msg to the subscribers of its kind without routing it.
// Handled channel messages go through here, and the session uses it for
// locally raised alerts.
func (m *Manager) Publish(source string, msg models.Message) {
	m.mu.RLock()
	subs := make([]Subscriber, 0, len(m.subs[msg.Kind()]))
	for _, fn := range m.subs[msg.Kind()] {
		subs = append(subs, fn)
	}
	m.mu.RUnlock()
	for _, fn := range subs {
		fn(source, msg)
	}
}
