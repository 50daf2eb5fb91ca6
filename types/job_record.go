package types

// JobRecord is one monitored job definition (a DAG) as an observer last saw it.
type JobRecord struct {
	JobID       string   `json:"job_id"`
	Description string   `json:"description,omitempty"`
	IsPaused    bool     `json:"is_paused"`
	IsActive    bool     `json:"is_active"`
	Owners      []string `json:"owners,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Schedule    string   `json:"schedule,omitempty"`

	// IsFavorite is local to this process and never sent to the remote API.
	IsFavorite bool `json:"is_favorite"`

	LatestRun *RunRef `json:"latest_run,omitempty"`
}

// HasActiveRun reports whether the latest run is queued or running.
func (j *JobRecord) HasActiveRun() bool {
	return j != nil && j.LatestRun.IsActive()
}

func (j *JobRecord) Clone() *JobRecord {
	if j == nil {
		return nil
	}
	c := *j
	c.Owners = append([]string(nil), j.Owners...)
	c.Tags = append([]string(nil), j.Tags...)
	if j.LatestRun != nil {
		run := *j.LatestRun
		c.LatestRun = &run
	}
	return &c
}
