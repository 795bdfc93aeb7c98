// Package scheduler runs the out-of-cycle maintenance jobs, such as actuals
// collection and calibration refits, on cron expressions.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler wraps a cron runner. Schedules use the standard five-field
// syntax in UTC, plus descriptors such as "@daily" or "@every 1h".
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context

	mu   sync.Mutex
	jobs map[string]entry
}

type entry struct {
	id  cron.EntryID
	job Job
}

// New creates a Scheduler whose jobs run with ctx. A job still running when
// its next tick arrives skips that tick.
func New(ctx context.Context) *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		ctx:  ctx,
		jobs: make(map[string]entry),
	}
}

// Register adds job under name on the given schedule.
func (s *Scheduler) Register(name, spec string, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("scheduler.Register: job %q already registered", name)
	}
	id, err := s.cron.AddFunc(spec, func() { _ = s.run(name, job) })
	if err != nil {
		return fmt.Errorf("scheduler.Register %s: schedule %q: %w", name, spec, err)
	}
	s.jobs[name] = entry{id: id, job: job}
	return nil
}

// RunNow executes a registered job synchronously, outside its schedule.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler.RunNow: unknown job %q", name)
	}
	return s.run(name, e.job)
}

// Next returns the next activation of a job, zero before Start.
func (s *Scheduler) Next(name string) time.Time {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(e.id).Next
}

// Jobs lists the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, n := range s.Jobs() {
		slog.Info("job scheduled", "job", n, "next", s.Next(n))
	}
}

// Stop halts the runner and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(name string, job Job) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	slog.Info("job starting", "job", name)
	if err := job(s.ctx); err != nil {
		slog.Error("job failed", "job", name, "err", err)
		return fmt.Errorf("scheduler: %s: %w", name, err)
	}
	slog.Info("job complete", "job", name, "duration", time.Since(start).Round(time.Millisecond))
	return nil
}
