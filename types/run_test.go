package types

import (
	"dagsync/internal/state"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRef_States(t *testing.T) {
	var nilRef *RunRef
	assert.False(t, nilRef.IsActive())
	assert.False(t, nilRef.IsKnown())

	assert.True(t, (&RunRef{RunID: "r", State: state.StatusQueued}).IsActive())
	assert.False(t, (&RunRef{RunID: "r", State: state.StatusSuccess}).IsActive())
	assert.False(t, UnknownRun().IsKnown())
	assert.False(t, UnknownRun().IsActive())
}

func TestRunRef_Equal(t *testing.T) {
	var nilRef *RunRef
	assert.True(t, nilRef.Equal(nil))
	assert.False(t, nilRef.Equal(&RunRef{}))
	assert.True(t, (&RunRef{RunID: "r", State: state.StatusFailed}).Equal(&RunRef{RunID: "r", State: state.StatusFailed}))
	assert.False(t, (&RunRef{RunID: "r", State: state.StatusFailed}).Equal(&RunRef{RunID: "r", State: state.StatusSuccess}))
}

func TestRunRecord_CloneIsDeep(t *testing.T) {
	run := &RunRecord{JobID: "etl", RunID: "r", State: state.StatusRunning, Conf: map[string]any{"full": true}}
	c := run.Clone()
	c.Conf["full"] = false
	assert.Equal(t, true, run.Conf["full"])
	assert.Equal(t, &RunRef{RunID: "r", State: state.StatusRunning}, run.Ref())

	var nilRun *RunRecord
	assert.Nil(t, nilRun.Clone())
	assert.Nil(t, nilRun.Ref())
}

func TestJobRecord_CloneIsDeep(t *testing.T) {
	job := &JobRecord{JobID: "etl", Tags: []string{"a"}, LatestRun: &RunRef{RunID: "r", State: state.StatusQueued}}
	c := job.Clone()
	c.Tags[0] = "b"
	c.LatestRun.State = state.StatusSuccess

	assert.Equal(t, "a", job.Tags[0])
	assert.True(t, job.HasActiveRun())
	assert.False(t, c.HasActiveRun())
}

func TestEvent_Run(t *testing.T) {
	assert.Nil(t, Event{Kind: EventPaused, JobID: "etl"}.Run())
	ref := Event{Kind: EventTriggered, JobID: "etl", RunID: "r", State: state.StatusQueued}.Run()
	require.NotNil(t, ref)
	assert.Equal(t, "r", ref.RunID)
}
