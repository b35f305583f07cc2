package model

import "time"

// Severity of a threshold warning.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Warning is one threshold crossing. Key deduplicates crossings for the
// lifetime of the engine; non-persistent warnings expire from the active
// list after a fixed display duration.
type Warning struct {
	Key        string   `json:"key"`
	Resource   string   `json:"resource"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	Persistent bool     `json:"persistent"`
	FiredAt    time.Time `json:"firedAt"`
}
