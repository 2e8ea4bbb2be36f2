package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubCollector struct {
	name      string
	value     float64
	err       error
	available bool
}

func (s stubCollector) Name() string                              { return s.name }
func (s stubCollector) Collect(context.Context) (float64, error) { return s.value, s.err }
func (s stubCollector) IsAvailable() bool                         { return s.available }

func TestRegistry_SkipsUnavailableAndFailed(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(stubCollector{name: "cpu", value: 12, available: true})
	r.Register(stubCollector{name: "gpu", value: 50, available: false})
	r.Register(stubCollector{name: "disk", err: errors.New("io"), available: true})

	assert.Len(t, r.Collectors(), 2)
	assert.Equal(t, map[string]float64{"cpu": 12}, r.CollectAll(context.Background()))
}

func TestRegistry_Snapshot(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Register(stubCollector{name: "memory", value: 40, available: true})

	at := time.Unix(100, 0)
	snap := r.Snapshot(context.Background(), at)
	assert.Equal(t, at, snap.Timestamp)
	assert.Equal(t, 40.0, snap.Metrics["memory"])
}

func TestClampPercent(t *testing.T) {
	assert.Equal(t, 0.0, clampPercent(-1))
	assert.Equal(t, 55.5, clampPercent(55.5))
	assert.Equal(t, 100.0, clampPercent(101))
}

func TestHostCollectors_ReadLocalHost(t *testing.T) {
	if testing.Short() {
		t.Skip("reads the local host")
	}
	v, err := NewMemoryCollector().Collect(context.Background())
	if err != nil {
		t.Skipf("memory stats unavailable: %v", err)
	}
	assert.GreaterOrEqual(t, v, 0.0)
	assert.LessOrEqual(t, v, 100.0)
}
