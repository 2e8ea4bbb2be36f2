package models

import "time"

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so escalation can be detected. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityCritical:
		return 2
	default:
		return 0
	}
}

// Alert is an operator-facing threshold-crossing notice. Alerts are never
// mutated after creation.
type Alert struct {
	ID            string    `json:"id"`
	MetricName    string    `json:"metric_name"`
	Severity      Severity  `json:"severity"`
	Message       string    `json:"message"`
	ObservedValue string    `json:"observed_value"`
	CreatedAt     time.Time `json:"created_at"`
}
