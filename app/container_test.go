package app

import (
	"context"
	"dagsync/client/test/mocks"
	"dagsync/internal/logger"
	"dagsync/internal/state"
	"dagsync/internal/store"
	"dagsync/types"
	"dagsync/types/config"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, opts ...config.Option) *config.DagSyncConfig {
	t.Helper()
	cfg, err := config.NewDagSyncConfig("test-instance", opts...)
	require.NoError(t, err)
	return cfg
}

func remoteMock() *mocks.MockRemoteJobClient {
	return &mocks.MockRemoteJobClient{
		ListJobsFunc: func(ctx context.Context) ([]types.JobRecord, error) {
			return []types.JobRecord{{JobID: "etl_daily"}}, nil
		},
		TriggerRunFunc: func(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
			return &types.RunRecord{JobID: jobID, RunID: "run_1", State: state.StatusQueued}, nil
		},
	}
}

func TestNewContainer_MemoryStore(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(t), WithRemoteClient(remoteMock()), WithLogger(logger.Nop()))
	require.NoError(t, err)

	_, ok := c.Favorites.(*store.MemoryFavoriteStore)
	assert.True(t, ok)
	assert.Nil(t, c.Relay)
	assert.Nil(t, c.DB)

	list, err := c.NewListObserver()
	require.NoError(t, err)
	detail, err := c.NewDetailObserver()
	require.NoError(t, err)
	assert.Equal(t, 2, c.Hub.Observers())

	detail.Dispose()
	assert.Equal(t, 1, c.Hub.Observers())

	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Hub.Observers())
	assert.False(t, list.Polling())

	_, err = c.NewListObserver()
	assert.Error(t, err)
	assert.NoError(t, c.Close())
}

func TestContainer_DisposedObserversAreForgotten(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(t), WithRemoteClient(remoteMock()), WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer c.Close()

	list, err := c.NewListObserver()
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		detail, err := c.NewDetailObserver()
		require.NoError(t, err)
		detail.Dispose()
	}
	assert.Equal(t, 1, c.Tracked())

	list.Dispose()
	list.Dispose()
	assert.Equal(t, 0, c.Tracked())
	assert.Equal(t, 0, c.Hub.Observers())
}

func TestContainer_ClosedRefusesObservers(t *testing.T) {
	c, err := NewContainer(context.Background(), testConfig(t), WithRemoteClient(remoteMock()), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.NewDetailObserver()
	assert.EqualError(t, err, "container is closed")
	assert.Equal(t, 0, c.Tracked())
	assert.Equal(t, 0, c.Hub.Observers())
}

func TestNewContainer_RequiresRemote(t *testing.T) {
	_, err := NewContainer(context.Background(), testConfig(t), WithLogger(logger.Nop()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base URL")
}

func TestNewContainer_RestClientFromConfig(t *testing.T) {
	cfg := testConfig(t, config.WithRemoteConfig(config.RemoteConfig{BaseURL: "http://localhost:8080"}))
	c, err := NewContainer(context.Background(), cfg, WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.Remote)
}

func TestNewContainer_PostgresStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS dagsync_schema").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT job_id FROM dagsync_schema.favorites").
		WithArgs("test-instance").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("etl_daily"))
	mock.ExpectClose()

	cfg := testConfig(t, config.WithPostgresConfig(config.PostgresConfig{ConnectionUrl: "postgres://localhost/dagsync"}))
	c, err := NewContainer(context.Background(), cfg, WithDB(db), WithRemoteClient(remoteMock()), WithLogger(logger.Nop()))
	require.NoError(t, err)

	list, err := c.NewListObserver()
	require.NoError(t, err)
	require.NoError(t, list.Load(context.Background()))
	job, ok := list.Job("etl_daily")
	require.True(t, ok)
	assert.True(t, job.IsFavorite)

	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewContainer_RelaysEvents(t *testing.T) {
	var mu sync.Mutex
	var published []types.Event
	incoming := make(chan []byte, 1)
	closed := false
	broker := &mocks.MockMessageBroker{
		PublishFunc: func(topic string, message []byte) error {
			var evt types.Event
			require.NoError(t, json.Unmarshal(message, &evt))
			mu.Lock()
			published = append(published, evt)
			mu.Unlock()
			return nil
		},
		ConsumeFunc: func(ctx context.Context, topic string) (<-chan []byte, error) {
			return incoming, nil
		},
		CloseFunc: func() error {
			closed = true
			return nil
		},
	}

	c, err := NewContainer(context.Background(), testConfig(t),
		WithRemoteClient(remoteMock()), WithMessageBroker(broker), WithLogger(logger.Nop()))
	require.NoError(t, err)
	require.NotNil(t, c.Relay)

	list, err := c.NewListObserver()
	require.NoError(t, err)
	require.NoError(t, list.Load(context.Background()))

	_, err = list.Trigger(context.Background(), "etl_daily", nil, nil)
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, published, 1)
	assert.Equal(t, "test-instance", published[0].Origin)
	mu.Unlock()

	remoteEvt, _ := json.Marshal(types.Event{
		ID: "e-2", Kind: types.EventCancelled, JobID: "etl_daily", RunID: "run_1",
		State: state.StatusFailed, Origin: "other-instance", At: time.Now(),
	})
	incoming <- remoteEvt

	assert.Eventually(t, func() bool {
		job, _ := list.Job("etl_daily")
		return job.LatestRun != nil && job.LatestRun.State == state.StatusFailed
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Close())
	assert.True(t, closed)
}
