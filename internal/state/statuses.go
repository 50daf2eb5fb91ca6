package state

import "strings"

type RunState string

const (
	StatusQueued  RunState = "queued"
	StatusRunning RunState = "running"
	StatusSuccess RunState = "success"
	StatusFailed  RunState = "failed"
	StatusUnknown RunState = "unknown"
)

func (s RunState) String() string {
	return string(s)
}

// IsActive reports whether a run in this state still needs polling.
func (s RunState) IsActive() bool {
	return s == StatusQueued || s == StatusRunning
}

func (s RunState) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

var AllStatuses = []RunState{
	StatusQueued,
	StatusRunning,
	StatusSuccess,
	StatusFailed,
	StatusUnknown,
}

// ParseRunState maps a remote state string onto a RunState.
// Anything the engine does not track is reported as unknown.
func ParseRunState(raw string) RunState {
	switch RunState(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusQueued:
		return StatusQueued
	case StatusRunning:
		return StatusRunning
	case StatusSuccess:
		return StatusSuccess
	case StatusFailed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

type Transition struct {
	From RunState
	To   RunState
}

var ValidTransitions = []Transition{
	{From: StatusQueued, To: StatusRunning},
	{From: StatusQueued, To: StatusSuccess},
	{From: StatusQueued, To: StatusFailed},
	{From: StatusRunning, To: StatusSuccess},
	{From: StatusRunning, To: StatusFailed},
}

// IsValidTransition reports whether from -> to is a forward move of a single run.
// Any state may fall back to unknown when tracking is dropped.
func IsValidTransition(from, to RunState) bool {
	if to == StatusUnknown || from == to {
		return true
	}
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
