// Package dispatch turns operator actions into agent commands and hands them
// to the control channel. Delivery is fire-and-forget: a successful dispatch
// means the frame reached the transport, not that the agent executed it.
package dispatch

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Guliveer/vitalis/console/internal/models"
)

var (
	// ErrEmptyAgent is returned when no target agent is named.
	ErrEmptyAgent = errors.New("agent name is required")

	// ErrInvalidAction is returned for actions other than start, stop and restart.
	ErrInvalidAction = errors.New("invalid action")
)

// Sender is the part of the channel manager the dispatcher needs.
type Sender interface {
	SendCommand(channel string, cmd models.Command) bool
	IsConnected(channel string) bool
}

// Result reports the outcome of a dispatch.
type Result struct {
	// Attempted is true when the command was written to an open channel.
	Attempted bool `json:"attempted"`
	// ChannelOpen reports whether the control channel was open at send time.
	ChannelOpen bool `json:"channel_open"`
	// RateLimited is true when the dispatcher's limiter rejected the command.
	RateLimited bool `json:"rate_limited,omitempty"`
}

// Options configures a Dispatcher.
type Options struct {
	Channel string

	// Rate and Burst configure an optional token bucket. A zero Rate disables limiting.
	Rate  rate.Limit
	Burst int

	Now func() time.Time
}

// Dispatcher sends control commands over a named channel.
type Dispatcher struct {
	sender  Sender
	channel string
	limiter *rate.Limiter
	now     func() time.Time
	logger  *zap.Logger
}

// New creates a dispatcher writing to opts.Channel (the control channel by default).
func New(sender Sender, opts Options, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		sender:  sender,
		channel: opts.Channel,
		now:     opts.Now,
		logger:  logger,
	}
	if d.channel == "" {
		d.channel = models.ChannelControl
	}
	if d.now == nil {
		d.now = time.Now
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		d.limiter = rate.NewLimiter(opts.Rate, burst)
	}
	return d
}

// Channel returns the name of the channel commands are sent on.
func (d *Dispatcher) Channel() string { return d.channel }

// Dispatch builds a command for agent and attempts delivery. The error is
// non-nil only for invalid input; transport problems are reported in Result.
func (d *Dispatcher) Dispatch(agent string, action models.Action) (Result, error) {
	agent = strings.TrimSpace(agent)
	if agent == "" {
		return Result{}, ErrEmptyAgent
	}
	action, err := models.ParseAction(string(action))
	if err != nil {
		return Result{}, errors.Join(ErrInvalidAction, err)
	}

	cmd := models.Command{
		TargetAgent: agent,
		Action:      action,
		IssuedAt:    d.now().UTC(),
	}

	if !d.sender.IsConnected(d.channel) {
		d.logger.Warn("Command not sent, control channel unavailable",
			zap.String("channel", d.channel),
			zap.String("agent", agent),
			zap.String("action", string(action)))
		return Result{}, nil
	}
	// Only commands that can be sent spend a token.
	if d.limiter != nil && !d.limiter.AllowN(cmd.IssuedAt, 1) {
		d.logger.Warn("Command rate limited",
			zap.String("agent", agent),
			zap.String("action", string(action)))
		return Result{ChannelOpen: true, RateLimited: true}, nil
	}

	// The channel can drop between the check and the write.
	if !d.sender.SendCommand(d.channel, cmd) {
		d.logger.Warn("Command write failed",
			zap.String("channel", d.channel),
			zap.String("agent", agent),
			zap.String("action", string(action)))
		return Result{}, nil
	}

	d.logger.Info("Command dispatched",
		zap.String("agent", agent),
		zap.String("action", string(action)))
	return Result{Attempted: true, ChannelOpen: true}, nil
}
