// Disk usage collector for a single mount point.
// Uses gopsutil for cross-platform disk metrics.
package collector

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// DiskCollector collects used space on one mount as a percentage.
type DiskCollector struct {
	path string
}

// NewDiskCollector creates a disk collector for the given mount path.
func NewDiskCollector(path string) *DiskCollector {
	if path == "" {
		path = "/"
	}
	return &DiskCollector{path: path}
}

// Name returns the metric name.
func (c *DiskCollector) Name() string { return models.MetricDisk }

// Collect gathers disk usage for the configured mount.
func (c *DiskCollector) Collect(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, c.path)
	if err != nil {
		return 0, err
	}
	if usage.Total == 0 {
		return 0, fmt.Errorf("mount %s reports zero size", c.path)
	}
	return clampPercent(usage.UsedPercent), nil
}

// IsAvailable reports whether the mount can be read.
func (c *DiskCollector) IsAvailable() bool {
	_, err := disk.Usage(c.path)
	return err == nil
}
