// Package collector samples local host resource usage so the console can
// chart and alert on the machine it runs on alongside the streamed metrics.
package collector

import "context"

// Collector is the interface that all host metric collectors must implement.
// Each collector produces one percentage-valued metric series.
type Collector interface {
	// Name returns the metric series name this collector feeds.
	Name() string

	// Collect samples the metric. The context allows for cancellation and timeout control.
	Collect(ctx context.Context) (float64, error)

	// IsAvailable checks if this collector can run on the current platform.
	// Collectors that return false will not be registered.
	IsAvailable() bool
}
