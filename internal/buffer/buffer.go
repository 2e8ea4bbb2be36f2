// Package buffer provides the in-memory history of metric samples.
// Each metric name owns a fixed-capacity ring; once full, the oldest sample
// is evicted for every new one. Nothing is persisted.
package buffer

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// DefaultCapacity is the number of samples kept per series when none is configured.
const DefaultCapacity = 50

// series is a ring of samples. head indexes the oldest sample.
type series struct {
	samples []models.MetricSample
	head    int
	size    int
}

func newSeries(capacity int) *series {
	return &series{samples: make([]models.MetricSample, capacity)}
}

func (s *series) push(sample models.MetricSample) {
	capacity := len(s.samples)
	if s.size < capacity {
		s.samples[(s.head+s.size)%capacity] = sample
		s.size++
		return
	}
	s.samples[s.head] = sample
	s.head = (s.head + 1) % capacity
}

func (s *series) snapshot() []models.MetricSample {
	out := make([]models.MetricSample, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.samples[(s.head+i)%len(s.samples)]
	}
	return out
}

// Buffer keeps a bounded time series per metric name.
type Buffer struct {
	capacity int
	logger   *zap.Logger

	mu     sync.RWMutex
	series map[string]*series
}

// New creates a buffer holding up to capacity samples per metric.
// A non-positive capacity falls back to DefaultCapacity.
func New(capacity int, logger *zap.Logger) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		logger:   logger,
		series:   make(map[string]*series),
	}
}

// Append pushes a sample onto the named series, creating it on first use.
// When the series is full the oldest sample is dropped first.
func (b *Buffer) Append(metric string, sample models.MetricSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.series[metric]
	if !ok {
		s = newSeries(b.capacity)
		b.series[metric] = s
		b.logger.Debug("Created metric series",
			zap.String("metric", metric),
			zap.Int("capacity", b.capacity))
	}
	s.push(sample)
}

// Snapshot returns a copy of the series, oldest first. Unknown metrics yield an empty slice.
func (b *Buffer) Snapshot(metric string) []models.MetricSample {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[metric]
	if !ok {
		return []models.MetricSample{}
	}
	return s.snapshot()
}

// Latest returns the newest sample of a series.
func (b *Buffer) Latest(metric string) (models.MetricSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, ok := b.series[metric]
	if !ok || s.size == 0 {
		return models.MetricSample{}, false
	}
	return s.samples[(s.head+s.size-1)%len(s.samples)], true
}

// Len returns the number of samples currently held for a metric.
func (b *Buffer) Len(metric string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if s, ok := b.series[metric]; ok {
		return s.size
	}
	return 0
}

// Metrics returns the known series names in sorted order.
func (b *Buffer) Metrics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.series))
	for name := range b.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Capacity returns the per-series capacity.
func (b *Buffer) Capacity() int { return b.capacity }
