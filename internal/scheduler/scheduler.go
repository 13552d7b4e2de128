// Package scheduler runs the periodic jobs (Telegram digest, ICS sync) on
// cron specs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "eventcal/internal/log"
)

// JobFunc is one unit of periodic work.
type JobFunc func(ctx context.Context) error

// Scheduler wraps cron so that a job never overlaps itself and a panicking
// job does not take the process down.
type Scheduler struct {
	cron  *cron.Cron
	chain cron.Chain

	mu    sync.RWMutex
	ctx   context.Context
	names map[cron.EntryID]string
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	logger := appLog.CronLogger()
	chain := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger))
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(loc), cron.WithLogger(logger)),
		chain: chain,
		ctx:   context.Background(),
		names: map[cron.EntryID]string{},
	}
}

// Add registers fn under a standard five-field spec or a descriptor such
// as "@hourly".
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	id, err := s.cron.AddJob(spec, s.job(name, fn))
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.mu.Lock()
	s.names[id] = name
	s.mu.Unlock()
	appLog.Info("job scheduled", "job", name, "spec", spec)
	return nil
}

// job builds the wrapped cron job. Errors are logged; the next tick runs
// normally.
func (s *Scheduler) job(name string, fn JobFunc) cron.Job {
	return s.chain.Then(cron.FuncJob(func() {
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		appLog.Debug("job started", "job", name)
		if err := fn(ctx); err != nil {
			appLog.Error("job failed", err, "job", name, "took", time.Since(started).String())
			return
		}
		appLog.Info("job done", "job", name, "took", time.Since(started).String())
	}))
}

// Start runs the scheduler until ctx is cancelled, then waits for running
// jobs to return.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	go func() {
		<-ctx.Done()
		stopped := s.cron.Stop()
		<-stopped.Done()
		appLog.Info("scheduler stopped")
	}()
}

// Next reports the next run of every job by name.
func (s *Scheduler) Next() map[string]time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.names))
	for _, e := range s.cron.Entries() {
		out[s.names[e.ID]] = e.Next
	}
	return out
}
