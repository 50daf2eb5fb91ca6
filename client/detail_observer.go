package client

import (
	"context"
	"dagsync/custom_errors"
	"dagsync/internal/hub"
	"dagsync/internal/logger"
	"dagsync/internal/poller"
	"dagsync/internal/remote"
	"dagsync/internal/state"
	"dagsync/types"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Focus is the job and run a DetailObserver shows. A pinned focus stays on
// RunID; an unpinned one follows the job's latest run.
type Focus struct {
	JobID  string `json:"job_id"`
	RunID  string `json:"run_id,omitempty"`
	Pinned bool   `json:"pinned"`
}

// DetailObserver owns exactly one job and one of its runs.
type DetailObserver struct {
	id        string
	client    remote.RemoteJobClient
	hub       *hub.NotificationHub
	opts      *options
	scheduler *poller.Scheduler
	log       *logger.Logger
	changed   changeListeners
	pending   pendingActions

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	focus    Focus
	job      *types.JobRecord
	run      *types.RunRecord
	epoch    uint64
	failures *failureTracker
	disposed bool
}

// NewDetailObserver creates a detail observer with nothing in focus and
// registers it with h.
func NewDetailObserver(client remote.RemoteJobClient, h *hub.NotificationHub, opts ...Option) (*DetailObserver, error) {
	if client == nil || h == nil {
		return nil, fmt.Errorf("detail observer needs a remote client and a hub")
	}
	o := buildOptions(defaultDetailInterval, opts)
	ctx, cancel := context.WithCancel(context.Background())

	d := &DetailObserver{
		id:       "detail-" + uuid.NewString(),
		client:   client,
		hub:      h,
		opts:     o,
		ctx:      ctx,
		cancel:   cancel,
		failures: newFailureTracker(o.failureLimit),
	}
	d.log = o.log.With("observer", d.id)
	d.scheduler = o.newScheduler(client, d)

	if err := h.Register(d); err != nil {
		cancel()
		return nil, err
	}
	return d, nil
}

func (d *DetailObserver) ID() string {
	return d.id
}

func (d *DetailObserver) OnChanged(fn func()) func() {
	return d.changed.add(fn)
}

func (d *DetailObserver) Polling() bool {
	return d.scheduler.Running()
}

func (d *DetailObserver) Focus() Focus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.focus
}

func (d *DetailObserver) Job() *types.JobRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.job.Clone()
}

func (d *DetailObserver) Run() *types.RunRecord {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.run.Clone()
}

// refocus resets local state to focus and stops any polling of the previous one.
// It returns the epoch completions of the new focus must carry.
func (d *DetailObserver) refocus(focus Focus) (uint64, bool) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return 0, false
	}
	d.epoch++
	if d.job != nil && d.job.JobID != focus.JobID {
		d.job = nil
	}
	d.run = nil
	d.focus = focus
	d.failures.clear()
	epoch := d.epoch
	d.mu.Unlock()

	d.scheduler.Stop()
	d.changed.notify()
	return epoch, true
}

// Open focuses jobID and follows its latest run.
func (d *DetailObserver) Open(ctx context.Context, jobID string) error {
	epoch, ok := d.refocus(Focus{JobID: jobID})
	if !ok {
		return nil
	}

	job, err := d.client.FetchJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("open %s: %w", jobID, err)
	}
	latest, err := d.client.FetchLatestRun(ctx, jobID)
	if err != nil {
		return fmt.Errorf("open %s: %w", jobID, err)
	}

	d.mu.Lock()
	if d.disposed || epoch != d.epoch {
		d.mu.Unlock()
		d.log.Debug("stale open discarded", "job_id", jobID)
		return nil
	}
	d.job = job.Clone()
	d.job.LatestRun = latest.Ref()
	d.run = latest.Clone()
	if latest != nil {
		d.focus.RunID = latest.RunID
	}
	active := d.runActiveLocked()
	d.mu.Unlock()

	if active {
		d.scheduler.StartIfNeeded()
	}
	d.changed.notify()
	return nil
}

// GoToRun swaps focus to one run of jobID. Results still in flight for the
// previous focus are discarded when they arrive.
func (d *DetailObserver) GoToRun(ctx context.Context, jobID, runID string) error {
	if runID == "" {
		return d.Open(ctx, jobID)
	}
	epoch, ok := d.refocus(Focus{JobID: jobID, RunID: runID, Pinned: true})
	if !ok {
		return nil
	}

	d.mu.RLock()
	needJob := d.job == nil
	d.mu.RUnlock()

	var job *types.JobRecord
	if needJob {
		var err error
		if job, err = d.client.FetchJob(ctx, jobID); err != nil {
			return fmt.Errorf("go to run %s/%s: %w", jobID, runID, err)
		}
	}
	run, err := d.client.FetchRun(ctx, jobID, runID)
	if err != nil {
		return fmt.Errorf("go to run %s/%s: %w", jobID, runID, err)
	}

	d.mu.Lock()
	if d.disposed || epoch != d.epoch {
		d.mu.Unlock()
		d.log.Debug("stale run navigation discarded", "job_id", jobID, "run_id", runID)
		return nil
	}
	if job != nil {
		d.job = job.Clone()
	}
	d.run = run.Clone()
	if d.job != nil && d.job.LatestRun.IsKnown() && d.job.LatestRun.RunID == run.RunID {
		d.job.LatestRun = run.Ref()
	}
	active := d.runActiveLocked()
	d.mu.Unlock()

	if active {
		d.scheduler.StartIfNeeded()
	}
	d.changed.notify()
	return nil
}

// Refresh refetches the focused job and run without changing focus.
func (d *DetailObserver) Refresh(ctx context.Context) error {
	d.mu.RLock()
	focus, epoch := d.focus, d.epoch
	sentLatest, sentRun := d.runSnapshotLocked()
	d.mu.RUnlock()
	if focus.JobID == "" {
		return custom_errors.NewGuardError("refresh", "", "no job in focus")
	}

	job, err := d.client.FetchJob(ctx, focus.JobID)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", focus.JobID, err)
	}
	latest, err := d.client.FetchLatestRun(ctx, focus.JobID)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", focus.JobID, err)
	}
	run := latest
	if focus.Pinned {
		if run, err = d.client.FetchRun(ctx, focus.JobID, focus.RunID); err != nil {
			return fmt.Errorf("refresh %s/%s: %w", focus.JobID, focus.RunID, err)
		}
	}

	d.mu.Lock()
	if d.disposed || epoch != d.epoch {
		d.mu.Unlock()
		return nil
	}
	latestKept, runKept := d.runUnchangedLocked(sentLatest, sentRun)
	previous := d.latestRunLocked()
	d.job = job.Clone()
	d.job.LatestRun = previous
	if latestKept {
		d.job.LatestRun = latest.Ref()
	}
	if runKept && (focus.Pinned || latestKept) {
		d.run = run.Clone()
		if !focus.Pinned && latest != nil {
			d.focus.RunID = latest.RunID
		}
		d.failures.clear()
	}
	active := d.runActiveLocked()
	d.mu.Unlock()

	if active {
		d.scheduler.StartIfNeeded()
	}
	d.changed.notify()
	return nil
}

func (d *DetailObserver) runActiveLocked() bool {
	return d.run != nil && d.run.RunID != "" && d.run.State.IsActive()
}

// ActiveTargets returns the focused run while it is queued or running.
func (d *DetailObserver) ActiveTargets() []poller.Target {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.disposed || !d.runActiveLocked() {
		return nil
	}
	return []poller.Target{{JobID: d.focus.JobID, RunID: d.run.RunID, Epoch: d.epoch}}
}

// Apply stores a poll result if it still belongs to the current focus.
func (d *DetailObserver) Apply(target poller.Target, run *types.RunRecord, err error) {
	d.mu.Lock()
	if d.disposed || target.Epoch != d.epoch || d.run == nil ||
		d.focus.JobID != target.JobID || d.run.RunID != target.RunID {
		d.mu.Unlock()
		d.log.Debug("stale poll result discarded", "job_id", target.JobID, "run_id", target.RunID)
		return
	}

	changed := false
	switch {
	case err != nil:
		if d.failures.record(target.RunID, err) {
			d.log.Info("run no longer tracked", "job_id", target.JobID, "run_id", target.RunID, "error", err)
			d.dropRunLocked(target.RunID)
			changed = true
		}
	case run != nil:
		d.failures.reset(target.RunID)
		changed = d.replaceRunLocked(run)
	}
	d.mu.Unlock()

	if changed {
		d.changed.notify()
	}
}

func (d *DetailObserver) dropRunLocked(runID string) {
	d.run = &types.RunRecord{JobID: d.focus.JobID, State: state.StatusUnknown}
	if d.job != nil && d.job.LatestRun.IsKnown() && d.job.LatestRun.RunID == runID {
		d.job.LatestRun = types.UnknownRun()
	}
}

func (d *DetailObserver) replaceRunLocked(run *types.RunRecord) bool {
	changed := false
	if d.run == nil || d.run.RunID != run.RunID || d.run.State != run.State ||
		!sameTime(d.run.StartTime, run.StartTime) || !sameTime(d.run.EndTime, run.EndTime) {
		if d.run != nil && d.run.RunID == run.RunID && !state.IsValidTransition(d.run.State, run.State) {
			d.log.Debug("unexpected run transition", "job_id", run.JobID, "run_id", run.RunID,
				"from", d.run.State.String(), "to", run.State.String())
		}
		d.run = run.Clone()
		changed = true
	}
	if d.job != nil && d.job.LatestRun.IsKnown() && d.job.LatestRun.RunID == run.RunID && !d.job.LatestRun.Equal(run.Ref()) {
		d.job.LatestRun = run.Ref()
		changed = true
	}
	return changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// current returns the focused job or a guard error naming the action.
func (d *DetailObserver) current(action string) (types.JobRecord, *types.RunRecord, uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.job == nil {
		return types.JobRecord{}, nil, 0, custom_errors.NewGuardError(action, d.focus.JobID, "no job in focus")
	}
	return *d.job.Clone(), d.run.Clone(), d.epoch, nil
}

// Trigger starts a new run of the focused job and moves focus onto it.
func (d *DetailObserver) Trigger(ctx context.Context, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
	job, _, epoch, err := d.current("trigger")
	if err != nil {
		return nil, err
	}
	if job.IsPaused {
		return nil, custom_errors.NewGuardError("trigger", job.JobID, "job is paused")
	}
	if job.HasActiveRun() {
		return nil, custom_errors.NewGuardError("trigger", job.JobID, "a run is already active")
	}
	if err := d.pending.acquire("trigger", job.JobID); err != nil {
		return nil, err
	}
	defer d.pending.release(job.JobID)

	run, err := d.client.TriggerRun(ctx, job.JobID, conf, logicalDate)
	if err != nil {
		return nil, custom_errors.NewActionError("trigger", job.JobID, err)
	}

	d.mu.Lock()
	if !d.disposed && epoch == d.epoch {
		d.job.LatestRun = run.Ref()
		d.run = run.Clone()
		d.focus = Focus{JobID: job.JobID, RunID: run.RunID}
		d.failures.clear()
	}
	d.mu.Unlock()

	d.hub.Publish(types.Event{Kind: types.EventTriggered, JobID: job.JobID, RunID: run.RunID, State: run.State}, d)
	d.scheduler.StartIfNeeded()
	d.changed.notify()
	return run.Clone(), nil
}

func (d *DetailObserver) Pause(ctx context.Context) error {
	return d.setPaused(ctx, true)
}

func (d *DetailObserver) Unpause(ctx context.Context) error {
	return d.setPaused(ctx, false)
}

func (d *DetailObserver) setPaused(ctx context.Context, paused bool) error {
	action, kind := "unpause", types.EventUnpaused
	if paused {
		action, kind = "pause", types.EventPaused
	}

	job, _, epoch, err := d.current(action)
	if err != nil {
		return err
	}
	if job.IsPaused == paused {
		return custom_errors.NewGuardError(action, job.JobID, "already "+kind.String())
	}
	if err := d.pending.acquire(action, job.JobID); err != nil {
		return err
	}
	defer d.pending.release(job.JobID)

	if err := d.client.SetPaused(ctx, job.JobID, paused); err != nil {
		return custom_errors.NewActionError(action, job.JobID, err)
	}

	d.mu.Lock()
	if !d.disposed && epoch == d.epoch {
		d.job.IsPaused = paused
	}
	d.mu.Unlock()

	d.hub.Publish(types.Event{Kind: kind, JobID: job.JobID}, d)
	d.changed.notify()
	return nil
}

// Cancel marks the focused run as failed. Only an active run can be cancelled.
func (d *DetailObserver) Cancel(ctx context.Context) error {
	job, run, epoch, err := d.current("cancel")
	if err != nil {
		return err
	}
	if run == nil || run.RunID == "" || !run.State.IsActive() {
		return custom_errors.NewGuardError("cancel", job.JobID, "no active run")
	}
	if err := d.pending.acquire("cancel", job.JobID); err != nil {
		return err
	}
	defer d.pending.release(job.JobID)

	if err := d.client.CancelRun(ctx, job.JobID, run.RunID); err != nil {
		return custom_errors.NewActionError("cancel", job.JobID, err)
	}

	d.mu.Lock()
	if !d.disposed && epoch == d.epoch && d.run != nil && d.run.RunID == run.RunID {
		cancelled := d.run.Clone()
		cancelled.State = state.StatusFailed
		d.replaceRunLocked(cancelled)
	}
	d.mu.Unlock()

	d.hub.Publish(types.Event{Kind: types.EventCancelled, JobID: job.JobID, RunID: run.RunID, State: state.StatusFailed}, d)
	d.changed.notify()
	return nil
}

// HandleEvent applies an event about the focused job published by another
// observer. Events about other jobs are ignored.
func (d *DetailObserver) HandleEvent(evt types.Event) {
	switch evt.Kind {
	case types.EventTriggered:
		d.applyTriggered(evt)
	case types.EventCancelled:
		d.applyCancelled(evt)
	case types.EventPaused, types.EventUnpaused:
		d.applyPauseEvent(evt)
	}
}

func (d *DetailObserver) applyTriggered(evt types.Event) {
	ref := evt.Run()
	if ref == nil {
		return
	}

	d.mu.Lock()
	if d.disposed || d.job == nil || d.job.JobID != evt.JobID {
		d.mu.Unlock()
		return
	}
	changed := false
	if !d.job.LatestRun.Equal(ref) {
		d.job.LatestRun = ref
		changed = true
	}
	followsRun := !d.focus.Pinned || (d.run != nil && d.run.RunID == ref.RunID)
	if followsRun && (d.run == nil || d.run.RunID != ref.RunID || d.run.State != ref.State) {
		if d.run == nil || d.run.RunID != ref.RunID {
			d.run = &types.RunRecord{JobID: evt.JobID, RunID: ref.RunID, State: ref.State}
			d.failures.clear()
		} else {
			d.run.State = ref.State
		}
		if !d.focus.Pinned {
			d.focus.RunID = ref.RunID
		}
		changed = true
	}
	active := d.runActiveLocked()
	d.mu.Unlock()

	if active {
		d.scheduler.StartIfNeeded()
	}
	if changed {
		d.changed.notify()
	}
}

func (d *DetailObserver) applyCancelled(evt types.Event) {
	d.mu.Lock()
	if d.disposed || d.job == nil || d.job.JobID != evt.JobID || evt.RunID == "" {
		d.mu.Unlock()
		return
	}
	changed := false
	if d.run != nil && d.run.RunID == evt.RunID && d.run.State != evt.State {
		d.run.State = evt.State
		changed = true
	}
	if d.job.LatestRun.IsKnown() && d.job.LatestRun.RunID == evt.RunID && d.job.LatestRun.State != evt.State {
		d.job.LatestRun = evt.Run()
		changed = true
	}
	d.mu.Unlock()

	if changed {
		d.changed.notify()
	}
}

func (d *DetailObserver) applyPauseEvent(evt types.Event) {
	paused := evt.Kind == types.EventPaused

	d.mu.Lock()
	if d.disposed || d.job == nil || d.job.JobID != evt.JobID || d.job.IsPaused == paused {
		d.mu.Unlock()
		return
	}
	d.job.IsPaused = paused
	epoch := d.epoch
	sentLatest, sentRun := d.runSnapshotLocked()
	d.mu.Unlock()

	d.changed.notify()
	go d.reload(epoch, evt.JobID, sentLatest, sentRun)
}

// runSnapshotLocked captures the latest run and the focused run before a fetch.
func (d *DetailObserver) runSnapshotLocked() (latest, run *types.RunRef) {
	return snapshotRef(d.latestRunLocked()), d.run.Ref()
}

// runUnchangedLocked reports whether the latest run and the focused run still
// match what was captured when a fetch went out.
func (d *DetailObserver) runUnchangedLocked(sentLatest, sentRun *types.RunRef) (latestKept, runKept bool) {
	return d.latestRunLocked().Equal(sentLatest), d.run.Ref().Equal(sentRun)
}

func (d *DetailObserver) latestRunLocked() *types.RunRef {
	if d.job == nil {
		return nil
	}
	return d.job.LatestRun
}

func (d *DetailObserver) reload(epoch uint64, jobID string, sentLatest, sentRun *types.RunRef) {
	ctx, cancel := reloadContext(d.ctx)
	defer cancel()

	fresh, err := d.client.FetchJob(ctx, jobID)
	if err != nil {
		d.log.Debug("job reload failed", "job_id", jobID, "error", err)
		return
	}
	latest, runErr := d.client.FetchLatestRun(ctx, jobID)

	d.mu.Lock()
	if d.disposed || epoch != d.epoch || d.job == nil {
		d.mu.Unlock()
		return
	}
	latestKept, runKept := d.runUnchangedLocked(sentLatest, sentRun)
	previous := d.job.LatestRun
	d.job = fresh.Clone()
	d.job.LatestRun = previous
	if runErr == nil && latestKept {
		d.job.LatestRun = latest.Ref()
		if !d.focus.Pinned && latest != nil && runKept {
			d.run = latest.Clone()
			d.focus.RunID = latest.RunID
		}
	}
	active := d.runActiveLocked()
	d.mu.Unlock()

	if active {
		d.scheduler.StartIfNeeded()
	}
	d.changed.notify()
}

// Dispose stops polling, abandons in-flight fetches and leaves the hub.
func (d *DetailObserver) Dispose() {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return
	}
	d.disposed = true
	d.mu.Unlock()

	d.scheduler.Close()
	d.hub.Deregister(d)
	d.cancel()
	d.opts.disposed()
}
