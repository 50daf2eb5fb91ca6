package web

import (
	"dagsync/custom_errors"
	"dagsync/internal/remote"
	"dagsync/internal/state"
	"dagsync/pgk/parser"
	"dagsync/types"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// jobView is a JobRecord as the renderer draws it.
type jobView struct {
	types.JobRecord
	Badge     string     `json:"badge"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

func newJobView(job types.JobRecord, now time.Time) jobView {
	view := jobView{JobRecord: job, Badge: StatusBadgeClass(state.StatusUnknown)}
	if job.LatestRun != nil {
		view.Badge = StatusBadgeClass(job.LatestRun.State)
	}
	if job.Schedule != "" && !job.IsPaused {
		next := parser.CalculateNextRun(job.Schedule, now)
		view.NextRunAt = &next
	}
	return view
}

// StatusBadgeClass maps a run state to the CSS class the dashboard uses.
func StatusBadgeClass(status state.RunState) string {
	switch status {
	case state.StatusQueued:
		return "badge bg-info"
	case state.StatusRunning:
		return "badge bg-primary"
	case state.StatusSuccess:
		return "badge bg-success"
	case state.StatusFailed:
		return "badge bg-danger"
	default:
		return "badge bg-light text-dark"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError maps observer errors to status codes: guard violations are the
// caller's fault, action failures are the remote API's.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, custom_errors.ErrGuard):
		status = http.StatusConflict
	case errors.Is(err, remote.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, custom_errors.ErrAction):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func printBanner(addr string) {
	width := 46
	fmt.Println("##############################################")
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Printf("# %-*s #\n", width-4, "dagsync started")
	fmt.Printf("# %-*s #\n", width-4, fmt.Sprintf("dashboard API on %s", addr))
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Println("##############################################")
}
