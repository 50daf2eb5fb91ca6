package mocks

import (
	"context"
	"dagsync/types"
	"time"
)

// MockRemoteJobClient is a mock implementation of remote.RemoteJobClient for testing.
type MockRemoteJobClient struct {
	ListJobsFunc       func(ctx context.Context) ([]types.JobRecord, error)
	FetchJobFunc       func(ctx context.Context, jobID string) (*types.JobRecord, error)
	FetchLatestRunFunc func(ctx context.Context, jobID string) (*types.RunRecord, error)
	FetchRunFunc       func(ctx context.Context, jobID, runID string) (*types.RunRecord, error)
	TriggerRunFunc     func(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error)
	SetPausedFunc      func(ctx context.Context, jobID string, paused bool) error
	CancelRunFunc      func(ctx context.Context, jobID, runID string) error
}

func (m *MockRemoteJobClient) ListJobs(ctx context.Context) ([]types.JobRecord, error) {
	if m.ListJobsFunc != nil {
		return m.ListJobsFunc(ctx)
	}
	return []types.JobRecord{}, nil
}

func (m *MockRemoteJobClient) FetchJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	if m.FetchJobFunc != nil {
		return m.FetchJobFunc(ctx, jobID)
	}
	return &types.JobRecord{JobID: jobID, IsActive: true}, nil
}

func (m *MockRemoteJobClient) FetchLatestRun(ctx context.Context, jobID string) (*types.RunRecord, error) {
	if m.FetchLatestRunFunc != nil {
		return m.FetchLatestRunFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *MockRemoteJobClient) FetchRun(ctx context.Context, jobID, runID string) (*types.RunRecord, error) {
	if m.FetchRunFunc != nil {
		return m.FetchRunFunc(ctx, jobID, runID)
	}
	return &types.RunRecord{JobID: jobID, RunID: runID, State: "success"}, nil
}

func (m *MockRemoteJobClient) TriggerRun(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
	if m.TriggerRunFunc != nil {
		return m.TriggerRunFunc(ctx, jobID, conf, logicalDate)
	}
	return &types.RunRecord{JobID: jobID, RunID: "manual__1", State: "queued"}, nil
}

func (m *MockRemoteJobClient) SetPaused(ctx context.Context, jobID string, paused bool) error {
	if m.SetPausedFunc != nil {
		return m.SetPausedFunc(ctx, jobID, paused)
	}
	return nil
}

func (m *MockRemoteJobClient) CancelRun(ctx context.Context, jobID, runID string) error {
	if m.CancelRunFunc != nil {
		return m.CancelRunFunc(ctx, jobID, runID)
	}
	return nil
}
