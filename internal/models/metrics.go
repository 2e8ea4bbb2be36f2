// Package models defines the telemetry data structures shared by the console core.
// Wire types carry JSON tags matching the frames delivered on the live channels.
package models

import "time"

// Well-known metric series names.
const (
	MetricCPU    = "cpu"
	MetricMemory = "memory"
	MetricDisk   = "disk"
)

// MetricSample is a single timestamped value in a metric series.
type MetricSample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Threshold holds the warning and critical boundaries for one metric.
// A value that meets or exceeds a boundary crosses it.
type Threshold struct {
	Warning  float64 `yaml:"warning" json:"warning"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultThresholds returns the built-in thresholds for the host metrics.
func DefaultThresholds() map[string]Threshold {
	return map[string]Threshold{
		MetricCPU:    {Warning: 70, Critical: 90},
		MetricMemory: {Warning: 80, Critical: 95},
		MetricDisk:   {Warning: 85, Critical: 95},
	}
}

// MetricSnapshot is a point-in-time reading of several metrics at once,
// as pushed on the system-metrics channel or returned by the pull endpoint.
type MetricSnapshot struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

// Samples expands the snapshot into per-metric samples, all stamped with the
// snapshot timestamp.
func (s MetricSnapshot) Samples() map[string]MetricSample {
	out := make(map[string]MetricSample, len(s.Metrics))
	for name, v := range s.Metrics {
		out[name] = MetricSample{Timestamp: s.Timestamp, Value: v}
	}
	return out
}

// QueueStatus holds the latest work-queue counts reported on the queue-status channel.
type QueueStatus struct {
	Pending    int       `json:"pending"`
	Processing int       `json:"processing"`
	Completed  int       `json:"completed"`
	Failed     int       `json:"failed"`
	UpdatedAt  time.Time `json:"timestamp"`
}
