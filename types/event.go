package types

import (
	"dagsync/internal/state"
	"time"
)

type EventKind string

const (
	EventTriggered EventKind = "triggered"
	EventCancelled EventKind = "cancelled"
	EventPaused    EventKind = "paused"
	EventUnpaused  EventKind = "unpaused"
)

func (k EventKind) String() string {
	return string(k)
}

// Event describes a state-changing action taken by one observer.
// ID, Origin and At are stamped by the hub on publish.
type Event struct {
	ID     string         `json:"id"`
	Kind   EventKind      `json:"kind"`
	JobID  string         `json:"job_id"`
	RunID  string         `json:"run_id,omitempty"`
	State  state.RunState `json:"state,omitempty"`
	Origin string         `json:"origin"`
	At     time.Time      `json:"at"`
}

// Run returns the run reference carried by a triggered or cancelled event.
func (e Event) Run() *RunRef {
	if e.RunID == "" {
		return nil
	}
	return &RunRef{RunID: e.RunID, State: e.State}
}
