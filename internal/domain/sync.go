package domain

import "time"

// SyncStats holds statistics about one background refresh.
type SyncStats struct {
	Fetched  int
	Stored   int
	Source   Source
	Duration time.Duration
}

// SyncEvent is published after a successful refresh or create so
// downstream consumers (notification fan-out, dashboards) can react.
type SyncEvent struct {
	Action    string    `json:"action"` // "refresh" or "create"
	Story     *Story    `json:"story,omitempty"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}
