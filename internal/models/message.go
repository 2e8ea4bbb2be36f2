package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageKind discriminates the payload of a live-channel frame.
type MessageKind string

const (
	KindStatusUpdate   MessageKind = "status_update"
	KindMetricSnapshot MessageKind = "metric_snapshot"
	KindQueueStatus    MessageKind = "queue_status"
	KindCommandAck     MessageKind = "command_ack"
	KindCommand        MessageKind = "command"

	// KindAlert is raised locally by the alert engine; it never arrives on a channel.
	KindAlert MessageKind = "alert"
)

// ErrMalformedMessage is returned for frames that cannot be decoded into a known message.
var ErrMalformedMessage = errors.New("malformed message")

// Message is a decoded inbound frame. The concrete types are StatusMessage,
// MetricMessage, QueueMessage, AckMessage and the locally raised AlertMessage.
type Message interface {
	Kind() MessageKind
	isMessage()
}

// StatusMessage carries one agent status update.
type StatusMessage struct{ Event StatusEvent }

// MetricMessage carries a metric snapshot.
type MetricMessage struct{ Snapshot MetricSnapshot }

// QueueMessage carries queue counts.
type QueueMessage struct{ Status QueueStatus }

// AckMessage carries a command acknowledgment.
type AckMessage struct{ Ack CommandAck }

// AlertMessage carries a newly raised alert.
type AlertMessage struct{ Alert Alert }

func (StatusMessage) Kind() MessageKind { return KindStatusUpdate }
func (MetricMessage) Kind() MessageKind { return KindMetricSnapshot }
func (QueueMessage) Kind() MessageKind  { return KindQueueStatus }
func (AckMessage) Kind() MessageKind    { return KindCommandAck }
func (AlertMessage) Kind() MessageKind  { return KindAlert }

func (StatusMessage) isMessage() {}
func (MetricMessage) isMessage() {}
func (QueueMessage) isMessage()  {}
func (AckMessage) isMessage()    {}
func (AlertMessage) isMessage()  {}

// envelope is the JSON frame shape. "kind" is accepted as an alias of "type".
type envelope struct {
	Type    MessageKind     `json:"type"`
	Kind    MessageKind     `json:"kind,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// metricPayload accepts both the multi-metric and the single-metric form.
type metricPayload struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Metric    string             `json:"metric"`
	Value     *float64           `json:"value"`
}

// DecodeMessage parses a raw frame into a typed Message. Frames without a
// recognizable kind or with an invalid payload yield an error wrapping
// ErrMalformedMessage. Missing timestamps are filled with now.
func DecodeMessage(data []byte, now time.Time) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	kind := env.Type
	if kind == "" {
		kind = env.Kind
	}
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return nil, fmt.Errorf("%w: %q frame has no payload", ErrMalformedMessage, kind)
	}

	switch kind {
	case KindStatusUpdate:
		var ev StatusEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, fmt.Errorf("%w: status payload: %v", ErrMalformedMessage, err)
		}
		if ev.Agent == "" {
			return nil, fmt.Errorf("%w: status payload without agent", ErrMalformedMessage)
		}
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		return StatusMessage{Event: ev}, nil

	case KindMetricSnapshot:
		var p metricPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("%w: metric payload: %v", ErrMalformedMessage, err)
		}
		snap := MetricSnapshot{Timestamp: p.Timestamp, Metrics: p.Metrics}
		if snap.Metrics == nil {
			snap.Metrics = make(map[string]float64)
		}
		if p.Metric != "" && p.Value != nil {
			snap.Metrics[p.Metric] = *p.Value
		}
		if len(snap.Metrics) == 0 {
			return nil, fmt.Errorf("%w: metric payload without values", ErrMalformedMessage)
		}
		if snap.Timestamp.IsZero() {
			snap.Timestamp = now
		}
		return MetricMessage{Snapshot: snap}, nil

	case KindQueueStatus:
		var q QueueStatus
		if err := json.Unmarshal(env.Payload, &q); err != nil {
			return nil, fmt.Errorf("%w: queue payload: %v", ErrMalformedMessage, err)
		}
		if q.UpdatedAt.IsZero() {
			q.UpdatedAt = now
		}
		return QueueMessage{Status: q}, nil

	case KindCommandAck:
		var ack CommandAck
		if err := json.Unmarshal(env.Payload, &ack); err != nil {
			return nil, fmt.Errorf("%w: ack payload: %v", ErrMalformedMessage, err)
		}
		return AckMessage{Ack: ack}, nil

	case "":
		return nil, fmt.Errorf("%w: missing message type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, kind)
	}
}

// EncodeCommand renders a command as an outbound frame.
func EncodeCommand(cmd Command) ([]byte, error) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("marshal command: %w", err)
	}
	return json.Marshal(envelope{Type: KindCommand, Payload: payload})
}
