package test

import (
	"context"
	"dagsync/client"
	"dagsync/client/test/mocks"
	"dagsync/internal/hub"
	"dagsync/internal/logger"
	"dagsync/internal/state"
	"dagsync/types"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

const pollInterval = 10 * time.Second

// spyObserver records every event the hub delivers to it.
type spyObserver struct {
	id     string
	mu     sync.Mutex
	events []types.Event
}

func (s *spyObserver) ID() string { return s.id }

func (s *spyObserver) HandleEvent(evt types.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *spyObserver) Events() []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Event(nil), s.events...)
}

func newTestHub(t *testing.T) (*hub.NotificationHub, *spyObserver) {
	h := hub.NewNotificationHub("test-instance", logger.Nop())
	spy := &spyObserver{id: "spy"}
	require.NoError(t, h.Register(spy))
	return h, spy
}

func jobsFixture() []types.JobRecord {
	return []types.JobRecord{
		{JobID: "etl_daily", Description: "Daily ETL", Owners: []string{"data"}, Tags: []string{"etl"}},
		{JobID: "reporting", Description: "Weekly reports", Owners: []string{"bi"}, Tags: []string{"reports"}},
		{JobID: "cleanup", IsPaused: true, Owners: []string{"ops"}},
	}
}

func newListObserver(t *testing.T, remote *mocks.MockRemoteJobClient, h *hub.NotificationHub, opts ...client.Option) *client.ListObserver {
	t.Helper()
	opts = append([]client.Option{client.WithLogger(logger.Nop())}, opts...)
	l, err := client.NewListObserver(remote, h, opts...)
	require.NoError(t, err)
	t.Cleanup(l.Dispose)
	return l
}

func newDetailObserver(t *testing.T, remote *mocks.MockRemoteJobClient, h *hub.NotificationHub, opts ...client.Option) *client.DetailObserver {
	t.Helper()
	opts = append([]client.Option{client.WithLogger(logger.Nop())}, opts...)
	d, err := client.NewDetailObserver(remote, h, opts...)
	require.NoError(t, err)
	t.Cleanup(d.Dispose)
	return d
}

// remoteWithJobs returns a client listing jobs and counting every remote call.
func remoteWithJobs(jobs []types.JobRecord, calls *int32) *mocks.MockRemoteJobClient {
	count := func() {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
	}
	return &mocks.MockRemoteJobClient{
		ListJobsFunc: func(ctx context.Context) ([]types.JobRecord, error) {
			return jobs, nil
		},
		TriggerRunFunc: func(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
			count()
			return &types.RunRecord{JobID: jobID, RunID: "run_1", State: state.StatusQueued}, nil
		},
		SetPausedFunc: func(ctx context.Context, jobID string, paused bool) error {
			count()
			return nil
		},
		CancelRunFunc: func(ctx context.Context, jobID, runID string) error {
			count()
			return nil
		},
	}
}

// waitForTimer blocks until the scheduler has armed its next timer.
func waitForTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}
