package models

import (
	"fmt"
	"strings"
	"time"
)

// AgentState is the lifecycle state reported by a worker agent.
type AgentState string

const (
	AgentIdle         AgentState = "idle"
	AgentInitializing AgentState = "initializing"
	AgentReady        AgentState = "ready"
	AgentProcessing   AgentState = "processing"
	AgentCompleted    AgentState = "completed"
	AgentError        AgentState = "error"
	AgentMaintenance  AgentState = "maintenance"
	AgentOffline      AgentState = "offline"
)

var agentStates = map[AgentState]bool{
	AgentIdle:         true,
	AgentInitializing: true,
	AgentReady:        true,
	AgentProcessing:   true,
	AgentCompleted:    true,
	AgentError:        true,
	AgentMaintenance:  true,
	AgentOffline:      true,
}

// ParseAgentState normalizes a state string (case-insensitive) and rejects unknown values.
func ParseAgentState(s string) (AgentState, error) {
	state := AgentState(strings.ToLower(strings.TrimSpace(s)))
	if !agentStates[state] {
		return "", fmt.Errorf("unknown agent state %q", s)
	}
	return state, nil
}

// AgentStatus is the current projected state of one agent.
type AgentStatus struct {
	Name          string     `json:"name"`
	State         AgentState `json:"state"`
	Progress      int        `json:"progress"`
	CurrentTask   string     `json:"current_task,omitempty"`
	LastUpdatedAt time.Time  `json:"last_updated_at"`
}

// AgentHistoryEntry records one status event in an agent's history.
type AgentHistoryEntry struct {
	Timestamp time.Time  `json:"timestamp"`
	State     AgentState `json:"state"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
}

// StatusEvent is a status update for a single agent, as streamed on the
// agent-status channel or returned by the pull endpoint.
type StatusEvent struct {
	Agent       string    `json:"agent"`
	State       string    `json:"state"`
	Progress    float64   `json:"progress"`
	CurrentTask string    `json:"current_task,omitempty"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
