package models

// ChannelState is the lifecycle state of a live channel.
type ChannelState string

const (
	ChannelConnecting   ChannelState = "connecting"
	ChannelOpen         ChannelState = "open"
	ChannelReconnecting ChannelState = "reconnecting"
	ChannelClosed       ChannelState = "closed"
	ChannelFailed       ChannelState = "failed"
)

// Well-known channel names.
const (
	ChannelAgentStatus   = "agent-status"
	ChannelSystemMetrics = "system-metrics"
	ChannelQueueStatus   = "queue-status"
	ChannelControl       = "control"
)

// ChannelInfo is a read-only view of a channel for the UI layer.
type ChannelInfo struct {
	Name       string       `json:"name"`
	Endpoint   string       `json:"endpoint"`
	State      ChannelState `json:"state"`
	RetryCount int          `json:"retry_count"`
	MaxRetries int          `json:"max_retries"`
}
