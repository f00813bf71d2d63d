package domain

import "time"

// MetricEvent is one per-operation measurement handed to the metrics
// collaborator: quote fetches, connection resolutions, and detection cycles
// all emit them.
type MetricEvent struct {
	Op       string        `json:"op"`
	Network  string        `json:"network,omitempty"`
	Venue    string        `json:"venue,omitempty"`
	Pair     string        `json:"pair,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	Success  bool          `json:"success"`
	Reason   string        `json:"reason,omitempty"` // failure reason, empty on success
	At       time.Time     `json:"at"`
}
