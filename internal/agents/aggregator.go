// Package agents projects streamed agent status events into the current
// status of each agent plus a short history of recent events.
package agents

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/console/internal/models"
)

// DefaultHistorySize is the number of history entries kept per agent.
const DefaultHistorySize = 20

// Aggregator holds current status and bounded history per agent name.
type Aggregator struct {
	historySize int
	logger      *zap.Logger

	mu      sync.RWMutex
	status  map[string]models.AgentStatus
	history map[string][]models.AgentHistoryEntry
}

// New creates an aggregator keeping historySize entries per agent.
func New(historySize int, logger *zap.Logger) *Aggregator {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &Aggregator{
		historySize: historySize,
		logger:      logger,
		status:      make(map[string]models.AgentStatus),
		history:     make(map[string][]models.AgentHistoryEntry),
	}
}

// Apply overwrites the agent's current status with the event and appends a
// history entry, evicting the oldest entries beyond the history size.
func (a *Aggregator) Apply(ev models.StatusEvent) error {
	if ev.Agent == "" {
		return fmt.Errorf("status event without agent name")
	}
	state, err := models.ParseAgentState(ev.State)
	if err != nil {
		return fmt.Errorf("agent %s: %w", ev.Agent, err)
	}
	progress := clampProgress(ev.Progress)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.status[ev.Agent] = models.AgentStatus{
		Name:          ev.Agent,
		State:         state,
		Progress:      progress,
		CurrentTask:   ev.CurrentTask,
		LastUpdatedAt: ev.Timestamp,
	}

	h := append(a.history[ev.Agent], models.AgentHistoryEntry{
		Timestamp: ev.Timestamp,
		State:     state,
		Progress:  progress,
		Message:   ev.Message,
	})
	if over := len(h) - a.historySize; over > 0 {
		h = append([]models.AgentHistoryEntry(nil), h[over:]...)
	}
	a.history[ev.Agent] = h

	a.logger.Debug("Agent status updated",
		zap.String("agent", ev.Agent),
		zap.String("state", string(state)),
		zap.Int("progress", progress))
	return nil
}

// Status returns the agent's current status. Agents never heard from are
// reported offline with zero progress.
func (a *Aggregator) Status(name string) models.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if st, ok := a.status[name]; ok {
		return st
	}
	return models.AgentStatus{Name: name, State: models.AgentOffline}
}

// History returns a copy of the agent's history, oldest first.
func (a *Aggregator) History(name string) []models.AgentHistoryEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h := a.history[name]
	out := make([]models.AgentHistoryEntry, len(h))
	copy(out, h)
	return out
}

// All returns the current status of every known agent sorted by name.
func (a *Aggregator) All() []models.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]models.AgentStatus, 0, len(a.status))
	for _, st := range a.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func clampProgress(p float64) int {
	if math.IsNaN(p) || p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return int(math.Round(p))
}
