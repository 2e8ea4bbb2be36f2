// Package channeltest provides an in-memory transport and a manually driven
// clock for testing code built on package channel.
package channeltest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Guliveer/vitalis/console/internal/channel"
)

// ErrRefused is returned by a failing Dialer.
var ErrRefused = errors.New("connection refused")

// Clock records AfterFunc callbacks and fires them on demand, synchronously,
// on the caller's goroutine.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*Timer
}

// Timer is a callback scheduled on a Clock.
type Timer struct {
	clock   *Clock
	At      time.Time
	Delay   time.Duration
	Fn      func()
	stopped bool
	fired   bool
}

// NewClock returns a clock starting at a fixed instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) AfterFunc(d time.Duration, f func()) channel.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &Timer{clock: c, At: c.now.Add(d), Delay: d, Fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Stop cancels the timer if it has not fired.
func (t *Timer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns timers that are neither stopped nor fired, earliest first.
func (c *Clock) Pending() []*Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*Timer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// FireNext advances to the earliest pending timer and runs it. It reports
// false when nothing is pending.
func (c *Clock) FireNext() bool {
	p := c.Pending()
	if len(p) == 0 {
		return false
	}
	t := p[0]
	c.mu.Lock()
	t.fired = true
	if t.At.After(c.now) {
		c.now = t.At
	}
	c.mu.Unlock()
	t.Fn()
	return true
}

// Dialer hands out Conns, or fails while failing is set.
type Dialer struct {
	mu       sync.Mutex
	failing  bool
	attempts int
	conns    []*Conn
}

// SetFailing makes subsequent dials fail (or succeed again).
func (d *Dialer) SetFailing(v bool) {
	d.mu.Lock()
	d.failing = v
	d.mu.Unlock()
}

func (d *Dialer) Dial(ctx context.Context, endpoint string) (channel.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts++
	if d.failing {
		return nil, ErrRefused
	}
	c := NewConn()
	d.conns = append(d.conns, c)
	return c, nil
}

// Attempts returns the number of Dial calls.
func (d *Dialer) Attempts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

// Conn returns the i-th successfully dialed connection, or nil.
func (d *Dialer) Conn(i int) *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

// TotalWrites counts frames written across every connection.
func (d *Dialer) TotalWrites() int {
	d.mu.Lock()
	conns := append([]*Conn(nil), d.conns...)
	d.mu.Unlock()
	n := 0
	for _, c := range conns {
		n += len(c.Written())
	}
	return n
}

// Conn is an in-memory connection. Frames pushed with Push are returned by
// ReadMessage in order.
type Conn struct {
	inbound chan []byte
	drop    chan struct{}
	closed  chan struct{}
	once    sync.Once
	dropped sync.Once

	mu     sync.Mutex
	writes [][]byte
}

// NewConn returns an open in-memory connection.
func NewConn() *Conn {
	return &Conn{
		inbound: make(chan []byte, 64),
		drop:    make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Push queues an inbound frame.
func (c *Conn) Push(frame string) {
	c.inbound <- []byte(frame)
}

func (c *Conn) ReadMessage() ([]byte, error) {
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.drop:
		return nil, errors.New("connection reset by peer")
	case <-c.closed:
		return nil, channel.ErrClosed
	}
}

func (c *Conn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return channel.ErrClosed
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *Conn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// PeerDrop simulates the remote end going away.
func (c *Conn) PeerDrop() {
	c.dropped.Do(func() { close(c.drop) })
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Written returns a copy of every frame written.
func (c *Conn) Written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}
