// Package channel manages the lifecycle of a single live telemetry channel:
// dialing, reading and decoding frames, writing commands, and reconnecting
// with a bounded number of retries after transport failures.
package channel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

const (
	// DefaultMaxRetries is used when the config leaves MaxRetries negative.
	DefaultMaxRetries = 5

	// DefaultReconnectDelay is used when the config leaves ReconnectDelay unset.
	DefaultReconnectDelay = 3 * time.Second

	// DefaultDialTimeout bounds a single connection attempt.
	DefaultDialTimeout = 10 * time.Second
)

// Conn is an established transport connection carrying whole frames.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// Handler receives every decoded inbound message, in arrival order.
type Handler func(channel string, msg models.Message)

// StateListener is notified after every state transition.
type StateListener func(channel string, state models.ChannelState)

// Config describes one channel.
type Config struct {
	Name     string
	Endpoint string

	// MaxRetries is the number of reconnect attempts after a failure before the
	// channel gives up and enters the failed state.
	MaxRetries int

	// ReconnectDelay is the wait before the first reconnect attempt. When
	// MaxReconnectDelay is set the delay doubles per attempt up to that cap;
	// otherwise it is fixed.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration

	DialTimeout time.Duration
}

// Channel owns one transport connection and its reconnect policy.
//
// Every connection attempt chain runs under a generation number. Disconnect
// bumps the generation, so a reconnect timer, dial or read loop belonging to
// an earlier generation can never reopen or mutate the channel.
type Channel struct {
	cfg    Config
	dialer Dialer
	clock  Clock
	logger *zap.Logger

	mu         sync.Mutex
	state      models.ChannelState
	retryCount int
	conn       Conn
	timer      Timer
	cancelDial context.CancelFunc
	gen        uint64
	handler    Handler
	listeners  []StateListener

	writeMu sync.Mutex
}

// New creates a closed channel. Nothing is dialed until Connect is called.
func New(cfg Config, dialer Dialer, clock Clock, logger *zap.Logger) *Channel {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if clock == nil {
		clock = RealClock()
	}
	return &Channel{
		cfg:    cfg,
		dialer: dialer,
		clock:  clock,
		logger: logger.With(zap.String("channel", cfg.Name)),
		state:  models.ChannelClosed,
	}
}

// Name returns the channel's logical name.
func (c *Channel) Name() string { return c.cfg.Name }

// SetHandler installs the inbound message handler.
func (c *Channel) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// OnStateChange registers a listener for state transitions.
func (c *Channel) OnStateChange(fn StateListener) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

// State returns the current lifecycle state.
func (c *Channel) State() models.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RetryCount returns the number of reconnect attempts made since the last open.
func (c *Channel) RetryCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retryCount
}

// Info returns a read-only view of the channel.
func (c *Channel) Info() models.ChannelInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.ChannelInfo{
		Name:       c.cfg.Name,
		Endpoint:   c.cfg.Endpoint,
		State:      c.state,
		RetryCount: c.retryCount,
		MaxRetries: c.cfg.MaxRetries,
	}
}

// Connect starts a connection attempt from the closed or failed state and
// returns immediately with the resulting state. When the channel is already
// open, connecting, or waiting to reconnect, it returns the current state and
// does nothing. An explicit connect gets a fresh retry budget.
func (c *Channel) Connect() models.ChannelState {
	c.mu.Lock()
	switch c.state {
	case models.ChannelOpen, models.ChannelConnecting, models.ChannelReconnecting:
		st := c.state
		c.mu.Unlock()
		return st
	}
	c.gen++
	gen := c.gen
	c.retryCount = 0
	c.state = models.ChannelConnecting
	listeners := c.listenersLocked()
	c.mu.Unlock()

	c.notify(listeners, models.ChannelConnecting)
	c.logger.Info("Connecting channel", zap.String("endpoint", c.cfg.Endpoint))
	go c.dial(gen)
	return models.ChannelConnecting
}

// Disconnect closes the channel, cancels any pending reconnect or in-flight
// dial, and leaves the channel closed until Connect is called again. It is a
// no-op on a closed channel. It reports whether anything changed.
func (c *Channel) Disconnect() bool {
	c.mu.Lock()
	if c.state == models.ChannelClosed {
		c.mu.Unlock()
		return false
	}
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.conn
	c.conn = nil
	c.retryCount = 0
	c.state = models.ChannelClosed
	listeners := c.listenersLocked()
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("Close after disconnect", zap.Error(err))
		}
	}
	c.logger.Info("Channel disconnected")
	c.notify(listeners, models.ChannelClosed)
	return true
}

// Send writes one frame. It returns false without writing unless the channel
// is open, and false when the transport write fails.
func (c *Channel) Send(data []byte) bool {
	c.mu.Lock()
	if c.state != models.ChannelOpen || c.conn == nil {
		c.mu.Unlock()
		return false
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	err := conn.WriteMessage(data)
	c.writeMu.Unlock()
	if err != nil {
		c.logger.Warn("Send failed", zap.Error(err))
		return false
	}
	return true
}

// dial performs one connection attempt for generation gen and, on success,
// runs the read loop until the connection ends.
func (c *Channel) dial(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.DialTimeout)
	defer cancel()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	conn, err := c.dialer.Dial(ctx, c.cfg.Endpoint)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancelDial = nil
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("Dial failed", zap.Error(err))
		c.fail(gen, err)
		return
	}
	c.conn = conn
	c.retryCount = 0
	c.state = models.ChannelOpen
	listeners := c.listenersLocked()
	c.mu.Unlock()

	c.logger.Info("Channel open")
	c.notify(listeners, models.ChannelOpen)
	c.readLoop(gen, conn)
}

// readLoop decodes frames until the connection fails. Malformed frames are
// logged and dropped without affecting the connection.
func (c *Channel) readLoop(gen uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			c.fail(gen, err)
			return
		}

		msg, err := models.DecodeMessage(data, c.clock.Now())
		if err != nil {
			c.logger.Warn("Dropping malformed message",
				zap.Int("bytes", len(data)),
				zap.Error(err))
			continue
		}

		c.mu.Lock()
		stale := c.gen != gen
		h := c.handler
		c.mu.Unlock()
		if stale {
			return
		}
		if h != nil {
			h(c.cfg.Name, msg)
		}
	}
}

// fail handles a transport failure for generation gen: schedule a reconnect
// while retries remain, otherwise enter the failed state.
func (c *Channel) fail(gen uint64, cause error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.conn = nil

	var (
		state models.ChannelState
		delay time.Duration
	)
	if c.retryCount >= c.cfg.MaxRetries {
		state = models.ChannelFailed
		c.timer = nil
	} else {
		c.retryCount++
		state = models.ChannelReconnecting
		delay = c.backoff(c.retryCount)
		c.timer = c.clock.AfterFunc(delay, func() { c.reconnect(gen) })
	}
	c.state = state
	attempt := c.retryCount
	listeners := c.listenersLocked()
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	if state == models.ChannelFailed {
		c.logger.Error("Reconnect attempts exhausted",
			zap.Int("max_retries", c.cfg.MaxRetries),
			zap.Error(cause))
	} else {
		c.logger.Warn("Connection lost, scheduling reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(cause))
	}
	c.notify(listeners, state)
}

// reconnect is the timer callback for a scheduled retry.
func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != models.ChannelReconnecting {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.state = models.ChannelConnecting
	listeners := c.listenersLocked()
	c.mu.Unlock()

	c.notify(listeners, models.ChannelConnecting)
	c.dial(gen)
}

// backoff returns the delay before the given reconnect attempt (1-based).
func (c *Channel) backoff(attempt int) time.Duration {
	return Backoff(c.cfg.ReconnectDelay, c.cfg.MaxReconnectDelay, attempt)
}

// Backoff computes the reconnect delay for a 1-based attempt. With a zero
// ceiling the base delay is returned unchanged; otherwise the base doubles per
// attempt and is capped at the ceiling.
func Backoff(base, ceiling time.Duration, attempt int) time.Duration {
	if ceiling <= 0 {
		return base
	}
	d := base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func (c *Channel) listenersLocked() []StateListener {
	if len(c.listeners) == 0 {
		return nil
	}
	out := make([]StateListener, len(c.listeners))
	copy(out, c.listeners)
	return out
}

func (c *Channel) notify(listeners []StateListener, state models.ChannelState) {
	for _, fn := range listeners {
		fn(c.cfg.Name, state)
	}
}
