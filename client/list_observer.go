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
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ListObserver owns the ordered collection of jobs shown in a list view and
// polls the active runs of the jobs its filter leaves visible.
type ListObserver struct {
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
	jobs     []*types.JobRecord
	index    map[string]*types.JobRecord
	filter   types.JobFilter
	epoch    uint64
	failures *failureTracker
	disposed bool
}

// NewListObserver creates a list observer and registers it with h.
func NewListObserver(client remote.RemoteJobClient, h *hub.NotificationHub, opts ...Option) (*ListObserver, error) {
	if client == nil || h == nil {
		return nil, fmt.Errorf("list observer needs a remote client and a hub")
	}
	o := buildOptions(defaultListInterval, opts)
	ctx, cancel := context.WithCancel(context.Background())

	l := &ListObserver{
		id:       "list-" + uuid.NewString(),
		client:   client,
		hub:      h,
		opts:     o,
		ctx:      ctx,
		cancel:   cancel,
		index:    make(map[string]*types.JobRecord),
		failures: newFailureTracker(o.failureLimit),
	}
	l.log = o.log.With("observer", l.id)
	l.scheduler = o.newScheduler(client, l)

	if err := h.Register(l); err != nil {
		cancel()
		return nil, err
	}
	return l, nil
}

func (l *ListObserver) ID() string {
	return l.id
}

// OnChanged subscribes fn to every mutation of the observer's state.
// The returned func unsubscribes it.
func (l *ListObserver) OnChanged(fn func()) func() {
	return l.changed.add(fn)
}

// Polling reports whether the observer's scheduler is armed.
func (l *ListObserver) Polling() bool {
	return l.scheduler.Running()
}

// Load replaces the collection with the remote job list, merging local favorites.
// Results of fetches issued before the reload are discarded.
func (l *ListObserver) Load(ctx context.Context) error {
	jobs, err := l.client.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	favorites := map[string]bool{}
	if l.opts.favorites != nil {
		if favorites, err = l.opts.favorites.List(ctx); err != nil {
			l.log.Warn("could not load favorites", "error", err)
			favorites = map[string]bool{}
		}
	}

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return nil
	}
	l.epoch++
	l.jobs = make([]*types.JobRecord, 0, len(jobs))
	l.index = make(map[string]*types.JobRecord, len(jobs))
	for i := range jobs {
		job := jobs[i].Clone()
		job.IsFavorite = favorites[job.JobID]
		l.jobs = append(l.jobs, job)
		l.index[job.JobID] = job
	}
	l.failures.clear()
	active := l.hasActiveVisibleLocked()
	l.mu.Unlock()

	l.log.Debug("job list loaded", "jobs", len(jobs))
	if active {
		l.scheduler.StartIfNeeded()
	}
	l.changed.notify()
	return nil
}

// SetFilter changes which jobs are visible. It does not start or stop polling;
// the next tick simply sees the new visible set.
func (l *ListObserver) SetFilter(filter types.JobFilter) {
	l.mu.Lock()
	l.filter = filter
	l.mu.Unlock()
	l.changed.notify()
}

func (l *ListObserver) Filter() types.JobFilter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.filter
}

// Jobs returns a snapshot of every job in list order.
func (l *ListObserver) Jobs() []types.JobRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.JobRecord, 0, len(l.jobs))
	for _, job := range l.jobs {
		out = append(out, *job.Clone())
	}
	return out
}

// Visible returns a snapshot of the jobs matching the current filter.
func (l *ListObserver) Visible() []types.JobRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.JobRecord, 0, len(l.jobs))
	for _, job := range l.visibleLocked() {
		out = append(out, *job.Clone())
	}
	return out
}

func (l *ListObserver) Job(jobID string) (*types.JobRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.index[jobID]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

func (l *ListObserver) visibleLocked() []*types.JobRecord {
	visible := make([]*types.JobRecord, 0, len(l.jobs))
	for _, job := range l.jobs {
		if l.filter.Matches(job) {
			visible = append(visible, job)
		}
	}
	return visible
}

func (l *ListObserver) hasActiveVisibleLocked() bool {
	for _, job := range l.visibleLocked() {
		if job.HasActiveRun() {
			return true
		}
	}
	return false
}

func (l *ListObserver) isVisibleLocked(job *types.JobRecord) bool {
	return l.filter.Matches(job)
}

// ActiveTargets returns the visible jobs whose latest run is queued or running.
func (l *ListObserver) ActiveTargets() []poller.Target {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.disposed {
		return nil
	}
	var targets []poller.Target
	for _, job := range l.visibleLocked() {
		if job.HasActiveRun() {
			targets = append(targets, poller.Target{JobID: job.JobID, RunID: job.LatestRun.RunID, Epoch: l.epoch})
		}
	}
	return targets
}

// Apply stores the result of a poll fetch if the job still tracks the fetched run.
func (l *ListObserver) Apply(target poller.Target, run *types.RunRecord, err error) {
	l.mu.Lock()
	job, ok := l.index[target.JobID]
	if l.disposed || target.Epoch != l.epoch || !ok || job.LatestRun == nil || job.LatestRun.RunID != target.RunID {
		l.mu.Unlock()
		l.log.Debug("stale poll result discarded", "job_id", target.JobID, "run_id", target.RunID)
		return
	}

	changed := false
	switch {
	case err != nil:
		if l.failures.record(job.JobID, err) {
			l.log.Info("run no longer tracked", "job_id", job.JobID, "run_id", target.RunID, "error", err)
			job.LatestRun = types.UnknownRun()
			changed = true
		}
	case run != nil:
		l.failures.reset(job.JobID)
		changed = l.replaceRunLocked(job, run.Ref())
	}
	l.mu.Unlock()

	if changed {
		l.changed.notify()
	}
}

func (l *ListObserver) replaceRunLocked(job *types.JobRecord, ref *types.RunRef) bool {
	if job.LatestRun.Equal(ref) {
		return false
	}
	if job.LatestRun != nil && ref != nil && job.LatestRun.RunID == ref.RunID &&
		!state.IsValidTransition(job.LatestRun.State, ref.State) {
		l.log.Debug("unexpected run transition", "job_id", job.JobID, "run_id", ref.RunID,
			"from", job.LatestRun.State.String(), "to", ref.State.String())
	}
	job.LatestRun = ref
	return true
}

// lookup returns the job or a guard error naming the action.
func (l *ListObserver) lookup(action, jobID string) (types.JobRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	job, ok := l.index[jobID]
	if !ok {
		return types.JobRecord{}, custom_errors.NewGuardError(action, jobID, "unknown job")
	}
	return *job.Clone(), nil
}

// Trigger starts a new run of jobID. Paused jobs and jobs with an active run
// are rejected without calling the remote API.
func (l *ListObserver) Trigger(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
	job, err := l.lookup("trigger", jobID)
	if err != nil {
		return nil, err
	}
	if job.IsPaused {
		return nil, custom_errors.NewGuardError("trigger", jobID, "job is paused")
	}
	if job.HasActiveRun() {
		return nil, custom_errors.NewGuardError("trigger", jobID, "a run is already active")
	}
	if err := l.pending.acquire("trigger", jobID); err != nil {
		return nil, err
	}
	defer l.pending.release(jobID)

	run, err := l.client.TriggerRun(ctx, jobID, conf, logicalDate)
	if err != nil {
		return nil, custom_errors.NewActionError("trigger", jobID, err)
	}

	l.mu.Lock()
	if current, ok := l.index[jobID]; ok {
		l.failures.reset(jobID)
		l.replaceRunLocked(current, run.Ref())
	}
	l.mu.Unlock()

	l.hub.Publish(types.Event{Kind: types.EventTriggered, JobID: jobID, RunID: run.RunID, State: run.State}, l)
	l.scheduler.StartIfNeeded()
	l.changed.notify()
	return run.Clone(), nil
}

func (l *ListObserver) Pause(ctx context.Context, jobID string) error {
	return l.setPaused(ctx, jobID, true)
}

func (l *ListObserver) Unpause(ctx context.Context, jobID string) error {
	return l.setPaused(ctx, jobID, false)
}

func (l *ListObserver) setPaused(ctx context.Context, jobID string, paused bool) error {
	action, kind := "unpause", types.EventUnpaused
	if paused {
		action, kind = "pause", types.EventPaused
	}

	job, err := l.lookup(action, jobID)
	if err != nil {
		return err
	}
	if job.IsPaused == paused {
		return custom_errors.NewGuardError(action, jobID, "already "+kind.String())
	}
	if err := l.pending.acquire(action, jobID); err != nil {
		return err
	}
	defer l.pending.release(jobID)

	if err := l.client.SetPaused(ctx, jobID, paused); err != nil {
		return custom_errors.NewActionError(action, jobID, err)
	}

	l.mu.Lock()
	if current, ok := l.index[jobID]; ok {
		current.IsPaused = paused
	}
	l.mu.Unlock()

	l.hub.Publish(types.Event{Kind: kind, JobID: jobID}, l)
	l.changed.notify()
	return nil
}

// Cancel marks the active run of jobID as failed.
func (l *ListObserver) Cancel(ctx context.Context, jobID string) error {
	job, err := l.lookup("cancel", jobID)
	if err != nil {
		return err
	}
	if !job.HasActiveRun() {
		return custom_errors.NewGuardError("cancel", jobID, "no active run")
	}
	if err := l.pending.acquire("cancel", jobID); err != nil {
		return err
	}
	defer l.pending.release(jobID)

	runID := job.LatestRun.RunID
	if err := l.client.CancelRun(ctx, jobID, runID); err != nil {
		return custom_errors.NewActionError("cancel", jobID, err)
	}

	cancelled := &types.RunRef{RunID: runID, State: state.StatusFailed}
	l.mu.Lock()
	if current, ok := l.index[jobID]; ok && current.LatestRun.IsKnown() && current.LatestRun.RunID == runID {
		l.replaceRunLocked(current, cancelled)
	}
	l.mu.Unlock()

	l.hub.Publish(types.Event{Kind: types.EventCancelled, JobID: jobID, RunID: runID, State: cancelled.State}, l)
	l.changed.notify()
	return nil
}

// ToggleFavorite flips the local favorite flag of jobID and persists it.
// Favorites are never sent to the remote API nor published to other observers.
func (l *ListObserver) ToggleFavorite(ctx context.Context, jobID string) (bool, error) {
	job, err := l.lookup("favorite", jobID)
	if err != nil {
		return false, err
	}
	favorite := !job.IsFavorite
	if l.opts.favorites != nil {
		if err := l.opts.favorites.Set(ctx, jobID, favorite); err != nil {
			return job.IsFavorite, custom_errors.NewActionError("favorite", jobID, err)
		}
	}

	l.mu.Lock()
	if current, ok := l.index[jobID]; ok {
		current.IsFavorite = favorite
	}
	l.mu.Unlock()

	l.changed.notify()
	return favorite, nil
}

type refreshCandidate struct {
	jobID string
	runID string
}

// RefreshVisibleRunStatus fetches the latest run of every visible, unpaused job,
// at most RefreshBatchLimit of them, and returns how many were refreshed.
func (l *ListObserver) RefreshVisibleRunStatus(ctx context.Context) (int, error) {
	l.mu.RLock()
	epoch := l.epoch
	var candidates []refreshCandidate
	for _, job := range l.visibleLocked() {
		if job.IsPaused {
			continue
		}
		if len(candidates) == l.opts.refreshBatchLimit {
			break
		}
		c := refreshCandidate{jobID: job.JobID}
		if job.LatestRun != nil {
			c.runID = job.LatestRun.RunID
		}
		candidates = append(candidates, c)
	}
	l.mu.RUnlock()

	if len(candidates) == 0 {
		return 0, nil
	}

	runs := make([]*types.RunRecord, len(candidates))
	errs := make([]error, len(candidates))
	sem := semaphore.NewWeighted(int64(l.opts.maxConcurrent))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		if err := sem.Acquire(gctx, 1); err != nil {
			_ = g.Wait()
			return 0, err
		}
		g.Go(func() error {
			defer sem.Release(1)
			runs[i], errs[i] = l.client.FetchLatestRun(gctx, c.jobID)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	refreshed := 0
	changed := false
	l.mu.Lock()
	if l.disposed || epoch != l.epoch {
		l.mu.Unlock()
		return 0, nil
	}
	for i, c := range candidates {
		job, ok := l.index[c.jobID]
		if !ok {
			continue
		}
		current := ""
		if job.LatestRun != nil {
			current = job.LatestRun.RunID
		}
		if current != c.runID {
			// superseded by an event or a trigger while fetching
			continue
		}
		if errs[i] != nil {
			if l.failures.record(job.JobID, errs[i]) && job.LatestRun != nil {
				job.LatestRun = types.UnknownRun()
				changed = true
			}
			continue
		}
		l.failures.reset(job.JobID)
		refreshed++
		if runs[i] == nil {
			if job.LatestRun != nil {
				job.LatestRun = nil
				changed = true
			}
			continue
		}
		if l.replaceRunLocked(job, runs[i].Ref()) {
			changed = true
		}
	}
	active := l.hasActiveVisibleLocked()
	l.mu.Unlock()

	l.log.Debug("visible runs refreshed", "requested", len(candidates), "refreshed", refreshed)
	if active {
		l.scheduler.StartIfNeeded()
	}
	if changed {
		l.changed.notify()
	}
	return refreshed, nil
}

// HandleEvent applies an event published by another observer. Applying the
// same event twice leaves the same state as applying it once.
func (l *ListObserver) HandleEvent(evt types.Event) {
	switch evt.Kind {
	case types.EventTriggered, types.EventCancelled:
		l.applyRunEvent(evt)
	case types.EventPaused, types.EventUnpaused:
		l.applyPauseEvent(evt)
	}
}

func (l *ListObserver) applyRunEvent(evt types.Event) {
	ref := evt.Run()
	if ref == nil {
		return
	}

	l.mu.Lock()
	job, ok := l.index[evt.JobID]
	if l.disposed || !ok {
		l.mu.Unlock()
		return
	}
	if evt.Kind == types.EventCancelled && job.LatestRun.IsKnown() && job.LatestRun.RunID != ref.RunID {
		// a newer run already replaced the cancelled one
		l.mu.Unlock()
		return
	}
	changed := l.replaceRunLocked(job, ref)
	if changed {
		l.failures.reset(job.JobID)
	}
	start := ref.IsActive() && l.isVisibleLocked(job)
	l.mu.Unlock()

	if start {
		l.scheduler.StartIfNeeded()
	}
	if changed {
		l.changed.notify()
	}
}

func (l *ListObserver) applyPauseEvent(evt types.Event) {
	paused := evt.Kind == types.EventPaused

	l.mu.Lock()
	job, ok := l.index[evt.JobID]
	if l.disposed || !ok || job.IsPaused == paused {
		l.mu.Unlock()
		return
	}
	job.IsPaused = paused
	epoch := l.epoch
	sent := snapshotRef(job.LatestRun)
	l.mu.Unlock()

	l.changed.notify()
	go l.reload(epoch, evt.JobID, sent)
}

// reload refetches one job and its latest run after another observer paused
// or unpaused it. The fetched run is dropped when the job's run moved on from
// sent in the meantime.
func (l *ListObserver) reload(epoch uint64, jobID string, sent *types.RunRef) {
	ctx, cancel := reloadContext(l.ctx)
	defer cancel()

	fresh, err := l.client.FetchJob(ctx, jobID)
	if err != nil {
		l.log.Debug("job reload failed", "job_id", jobID, "error", err)
		return
	}
	latest, runErr := l.client.FetchLatestRun(ctx, jobID)

	l.mu.Lock()
	job, ok := l.index[jobID]
	if l.disposed || epoch != l.epoch || !ok {
		l.mu.Unlock()
		return
	}
	job.Description = fresh.Description
	job.IsPaused = fresh.IsPaused
	job.IsActive = fresh.IsActive
	job.Owners = append([]string(nil), fresh.Owners...)
	job.Tags = append([]string(nil), fresh.Tags...)
	job.Schedule = fresh.Schedule
	if runErr == nil && job.LatestRun.Equal(sent) {
		if latest == nil {
			job.LatestRun = nil
		} else {
			l.replaceRunLocked(job, latest.Ref())
		}
	}
	start := job.HasActiveRun() && l.isVisibleLocked(job)
	l.mu.Unlock()

	if start {
		l.scheduler.StartIfNeeded()
	}
	l.changed.notify()
}

// Dispose stops polling, abandons in-flight fetches and leaves the hub.
func (l *ListObserver) Dispose() {
	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		return
	}
	l.disposed = true
	l.mu.Unlock()

	l.scheduler.Close()
	l.hub.Deregister(l)
	l.cancel()
	l.opts.disposed()
}
