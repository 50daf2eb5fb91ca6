package types

import (
	"dagsync/internal/state"
	"time"
)

// RunRef is the lightweight reference a JobRecord keeps to its latest run.
type RunRef struct {
	RunID string         `json:"run_id"`
	State state.RunState `json:"state"`
}

// IsActive reports whether the referenced run is queued or running.
func (r *RunRef) IsActive() bool {
	return r != nil && r.RunID != "" && r.State.IsActive()
}

// IsKnown reports whether the reference still points at a tracked run.
func (r *RunRef) IsKnown() bool {
	return r != nil && r.RunID != ""
}

func (r *RunRef) Equal(other *RunRef) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.RunID == other.RunID && r.State == other.State
}

// UnknownRun is what a job falls back to once its run can no longer be fetched.
func UnknownRun() *RunRef {
	return &RunRef{State: state.StatusUnknown}
}

// RunRecord is the full view of one run as returned by the remote API.
type RunRecord struct {
	JobID       string         `json:"job_id"`
	RunID       string         `json:"run_id"`
	State       state.RunState `json:"state"`
	LogicalDate *time.Time     `json:"logical_date,omitempty"`
	StartTime   *time.Time     `json:"start_time,omitempty"`
	EndTime     *time.Time     `json:"end_time,omitempty"`
	Conf        map[string]any `json:"conf,omitempty"`
}

func (r *RunRecord) Ref() *RunRef {
	if r == nil {
		return nil
	}
	return &RunRef{RunID: r.RunID, State: r.State}
}

func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Conf != nil {
		c.Conf = make(map[string]any, len(r.Conf))
		for k, v := range r.Conf {
			c.Conf[k] = v
		}
	}
	return &c
}
