package remote

import (
	"context"
	"dagsync/types"
	"errors"
	"time"
)

// ErrNotFound is returned when the job or run no longer exists remotely.
var ErrNotFound = errors.New("not found")

// RemoteJobClient is the job API every observer and scheduler talks to.
// Credentials are bound at construction; swapping sessions means building a new client.
type RemoteJobClient interface {
	// ListJobs returns every job definition visible to the current credentials.
	ListJobs(ctx context.Context) ([]types.JobRecord, error)

	// FetchJob reloads the flags and descriptive data of one job.
	FetchJob(ctx context.Context, jobID string) (*types.JobRecord, error)

	// FetchLatestRun returns the most recent run, or nil when the job never ran.
	FetchLatestRun(ctx context.Context, jobID string) (*types.RunRecord, error)

	FetchRun(ctx context.Context, jobID, runID string) (*types.RunRecord, error)

	// TriggerRun starts a new run with the given conf and optional logical date.
	TriggerRun(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error)

	SetPaused(ctx context.Context, jobID string, paused bool) error

	CancelRun(ctx context.Context, jobID, runID string) error
}
