package client

import (
	"context"
	"dagsync/custom_errors"
	"dagsync/internal/hub"
	"dagsync/internal/logger"
	"dagsync/internal/poller"
	"dagsync/internal/remote"
	"dagsync/internal/store"
	"dagsync/types"
	"dagsync/types/config"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
)

const (
	defaultListInterval   = 10 * time.Second
	defaultDetailInterval = 5 * time.Second
)

type options struct {
	schedule          cron.Schedule
	clock             clockwork.Clock
	maxConcurrent     int
	refreshBatchLimit int
	failureLimit      int
	favorites         store.FavoriteStore
	log               *logger.Logger
	onDispose         []func()
}

// Option configures a ListObserver or DetailObserver.
type Option func(*options)

// WithSchedule sets how often the observer polls its active runs.
func WithSchedule(schedule cron.Schedule) Option {
	return func(o *options) {
		if schedule != nil {
			o.schedule = schedule
		}
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithMaxConcurrentFetches(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithRefreshBatchLimit caps how many jobs one RefreshVisibleRunStatus call fetches.
func WithRefreshBatchLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.refreshBatchLimit = n
		}
	}
}

// WithTransientFailureLimit sets how many consecutive non-404 fetch failures
// are tolerated before a run stops being tracked. Zero drops it on the first one.
func WithTransientFailureLimit(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.failureLimit = n
		}
	}
}

func WithFavoriteStore(s store.FavoriteStore) Option {
	return func(o *options) {
		o.favorites = s
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithOnDispose registers fn to run once the observer has been disposed.
func WithOnDispose(fn func()) Option {
	return func(o *options) {
		if fn != nil {
			o.onDispose = append(o.onDispose, fn)
		}
	}
}

func (o *options) disposed() {
	for _, fn := range o.onDispose {
		fn()
	}
}

func buildOptions(interval time.Duration, opts []Option) *options {
	o := &options{
		schedule:          cron.Every(interval),
		clock:             clockwork.NewRealClock(),
		maxConcurrent:     config.DefaultMaxConcurrentFetches,
		refreshBatchLimit: config.DefaultRefreshBatchLimit,
		failureLimit:      config.DefaultTransientFailureLimit,
		log:               logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) newScheduler(client remote.RemoteJobClient, scope poller.Scope) *poller.Scheduler {
	return poller.NewScheduler(client, scope, o.schedule,
		poller.WithClock(o.clock),
		poller.WithMaxConcurrent(o.maxConcurrent),
		poller.WithLogger(o.log),
	)
}

// changeListeners fans the onChanged hook out to every subscribed renderer.
type changeListeners struct {
	mu        sync.Mutex
	seq       int
	listeners map[int]func()
}

func (c *changeListeners) add(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listeners == nil {
		c.listeners = make(map[int]func())
	}
	c.seq++
	id := c.seq
	c.listeners[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// notify must be called without the observer lock held.
func (c *changeListeners) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// failureTracker counts consecutive poll failures per key.
type failureTracker struct {
	limit  int
	counts map[string]int
}

func newFailureTracker(limit int) *failureTracker {
	return &failureTracker{limit: limit, counts: make(map[string]int)}
}

// record reports whether tracking of key must be dropped after err.
// A missing job or run is never retried.
func (f *failureTracker) record(key string, err error) bool {
	if errors.Is(err, remote.ErrNotFound) {
		delete(f.counts, key)
		return true
	}
	f.counts[key]++
	if f.counts[key] > f.limit {
		delete(f.counts, key)
		return true
	}
	return false
}

func (f *failureTracker) reset(key string) {
	delete(f.counts, key)
}

func (f *failureTracker) clear() {
	f.counts = make(map[string]int)
}

// pendingActions rejects a second action on a job while one is in flight.
type pendingActions struct {
	mu   sync.Mutex
	jobs map[string]string
}

func (p *pendingActions) acquire(action, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobs == nil {
		p.jobs = make(map[string]string)
	}
	if running, ok := p.jobs[jobID]; ok {
		return custom_errors.NewGuardError(action, jobID, running+" is still in progress")
	}
	p.jobs[jobID] = action
	return nil
}

func (p *pendingActions) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, jobID)
}

// reloadTimeout bounds the background job reload started by paused/unpaused events.
const reloadTimeout = 30 * time.Second

func reloadContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, reloadTimeout)
}

// snapshotRef copies ref so a background fetch can later tell whether an event
// or a poll replaced the run while it was in flight.
func snapshotRef(ref *types.RunRef) *types.RunRef {
	if ref == nil {
		return nil
	}
	c := *ref
	return &c
}

var _ hub.Observer = (*ListObserver)(nil)
var _ hub.Observer = (*DetailObserver)(nil)
var _ poller.Scope = (*ListObserver)(nil)
var _ poller.Scope = (*DetailObserver)(nil)
