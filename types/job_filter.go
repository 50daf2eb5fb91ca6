package types

import "strings"

type StatusFilter string

const (
	FilterAll     StatusFilter = ""
	FilterActive  StatusFilter = "active"
	FilterPaused  StatusFilter = "paused"
	FilterRunning StatusFilter = "running"
)

// JobFilter holds the inputs of the list view's visibility predicate.
type JobFilter struct {
	Search        string       `json:"search,omitempty"`
	Owner         string       `json:"owner,omitempty"`
	Tag           string       `json:"tag,omitempty"`
	Status        StatusFilter `json:"status,omitempty"`
	FavoritesOnly bool         `json:"favorites_only,omitempty"`
}

func (f JobFilter) Matches(job *JobRecord) bool {
	if job == nil {
		return false
	}
	if f.FavoritesOnly && !job.IsFavorite {
		return false
	}

	switch f.Status {
	case FilterActive:
		if job.IsPaused {
			return false
		}
	case FilterPaused:
		if !job.IsPaused {
			return false
		}
	case FilterRunning:
		if !job.HasActiveRun() {
			return false
		}
	}

	if f.Owner != "" && !containsFold(job.Owners, f.Owner) {
		return false
	}
	if f.Tag != "" && !containsFold(job.Tags, f.Tag) {
		return false
	}

	search := strings.ToLower(strings.TrimSpace(f.Search))
	if search == "" {
		return true
	}
	if strings.Contains(strings.ToLower(job.JobID), search) ||
		strings.Contains(strings.ToLower(job.Description), search) {
		return true
	}
	for _, v := range append(append([]string(nil), job.Owners...), job.Tags...) {
		if strings.Contains(strings.ToLower(v), search) {
			return true
		}
	}
	return false
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
