package models

import (
	"fmt"
	"strings"
	"time"
)

// Action is a control operation an operator can issue to an agent.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction normalizes an action string and rejects anything but start, stop and restart.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// Command is a fire-and-forget control request for one agent.
type Command struct {
	TargetAgent string    `json:"target_agent"`
	Action      Action    `json:"action"`
	IssuedAt    time.Time `json:"issued_at"`
}

// CommandAck is an optional acknowledgment pushed back by an agent. The core
// only logs it; delivery is never confirmed through it.
type CommandAck struct {
	Agent   string `json:"agent"`
	Action  Action `json:"action"`
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}
