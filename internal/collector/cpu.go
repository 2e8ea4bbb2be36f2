// CPU usage collector, overall utilization across all cores.
// Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// CPUCollector collects overall CPU usage.
type CPUCollector struct {
	window time.Duration
}

// NewCPUCollector creates a CPU collector measuring over the given window.
func NewCPUCollector(window time.Duration) *CPUCollector {
	if window <= 0 {
		window = time.Second
	}
	return &CPUCollector{window: window}
}

// Name returns the metric name.
func (c *CPUCollector) Name() string { return models.MetricCPU }

// Collect measures CPU usage; it blocks for the measurement window.
func (c *CPUCollector) Collect(ctx context.Context) (float64, error) {
	overall, err := cpu.PercentWithContext(ctx, c.window, false)
	if err != nil {
		return 0, err
	}
	if len(overall) == 0 {
		return 0, nil
	}
	return clampPercent(overall[0]), nil
}

// IsAvailable returns true, CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }

func clampPercent(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
