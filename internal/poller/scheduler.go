package poller

import (
	"context"
	"dagsync/internal/logger"
	"dagsync/internal/remote"
	"dagsync/types"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Target is one run a scheduler refreshes on a tick. An empty RunID asks for
// the job's latest run. Epoch is an opaque value the scope uses to recognise
// results issued before its state was reset.
type Target struct {
	JobID string
	RunID string
	Epoch uint64
}

// Scope decides what a scheduler polls and receives what it fetched.
type Scope interface {
	// ActiveTargets returns the runs that currently count as active.
	ActiveTargets() []Target
	// Apply hands over the result of one fetch. The scope re-validates the
	// target against its current state before mutating anything.
	Apply(target Target, run *types.RunRecord, err error)
}

// Scheduler periodically refreshes the active runs of one observer and stops
// itself once none are left.
type Scheduler struct {
	client        remote.RemoteJobClient
	scope         Scope
	schedule      cron.Schedule
	clock         clockwork.Clock
	maxConcurrent int64
	log           *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	running    bool
	closed     bool
	generation uint64
	stopCh     chan struct{}

	// tickMu keeps ticks of successive generations from overlapping.
	tickMu sync.Mutex
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrent = int64(n)
		}
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

func NewScheduler(client remote.RemoteJobClient, scope Scope, schedule cron.Schedule, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		client:        client,
		scope:         scope,
		schedule:      schedule,
		clock:         clockwork.NewRealClock(),
		maxConcurrent: 5,
		log:           logger.Nop(),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartIfNeeded arms the timer unless it is already armed. It is a no-op once closed.
func (s *Scheduler) StartIfNeeded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.closed {
		return
	}
	s.running = true
	s.generation++
	s.stopCh = make(chan struct{})
	go s.loop(s.generation, s.stopCh)
}

// Stop disarms the timer. Fetches already in flight complete, but their
// results are dropped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close stops the scheduler for good and abandons in-flight fetches.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.cancel()
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	s.running = false
	s.generation++
	close(s.stopCh)
}

func (s *Scheduler) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *Scheduler) loop(gen uint64, stop <-chan struct{}) {
	for {
		now := s.clock.Now()
		timer := s.clock.NewTimer(s.schedule.Next(now).Sub(now))

		select {
		case <-s.ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.Chan():
		}

		s.tick(gen)

		s.mu.Lock()
		if s.generation != gen {
			s.mu.Unlock()
			return
		}
		if len(s.scope.ActiveTargets()) == 0 {
			s.log.Debug("no active runs left, stopping poller")
			s.stopLocked()
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

type fetchResult struct {
	target Target
	run    *types.RunRecord
	err    error
}

func (s *Scheduler) tick(gen uint64) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	targets := s.scope.ActiveTargets()
	if len(targets) == 0 {
		return
	}

	results := make([]fetchResult, len(targets))
	sem := semaphore.NewWeighted(s.maxConcurrent)
	g, ctx := errgroup.WithContext(s.ctx)

	for i, target := range targets {
		i, target := i, target
		if err := sem.Acquire(ctx, 1); err != nil {
			// closed while fanning out
			_ = g.Wait()
			return
		}
		g.Go(func() error {
			defer sem.Release(1)
			run, err := s.fetch(ctx, target)
			results[i] = fetchResult{target: target, run: run, err: err}
			return nil
		})
	}
	_ = g.Wait()

	if s.ctx.Err() != nil || !s.current(gen) {
		return
	}
	for _, res := range results {
		if res.err != nil {
			s.log.Debug("poll fetch failed", "job_id", res.target.JobID, "run_id", res.target.RunID, "error", res.err)
		}
		s.scope.Apply(res.target, res.run, res.err)
	}
}

func (s *Scheduler) fetch(ctx context.Context, target Target) (*types.RunRecord, error) {
	if target.RunID == "" {
		return s.client.FetchLatestRun(ctx, target.JobID)
	}
	return s.client.FetchRun(ctx, target.JobID, target.RunID)
}
