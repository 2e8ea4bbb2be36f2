// RAM usage collector.
// Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// MemoryCollector collects RAM usage as a percentage of total.
type MemoryCollector struct{}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Name returns the metric name.
func (c *MemoryCollector) Name() string { return models.MetricMemory }

// Collect gathers memory usage.
func (c *MemoryCollector) Collect(ctx context.Context) (float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return clampPercent(v.UsedPercent), nil
}

// IsAvailable returns true, memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }
