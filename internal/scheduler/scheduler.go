package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "evboard/internal/log"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler runs one job on a cron schedule. A run that is still in
// progress when the next tick fires causes that tick to be skipped.
type Scheduler struct {
	c    *cron.Cron
	name string
	job  Job
	loc  *time.Location

	mu      sync.Mutex
	running bool
	ctx     context.Context
}

// New parses spec (standard five-field cron or a descriptor such as
// "@every 1h" / "@daily") and prepares a scheduler for job.
func New(spec, name string, loc *time.Location, job Job) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{
		c:    cron.New(cron.WithLocation(loc)),
		name: name,
		job:  job,
		loc:  loc,
		ctx:  context.Background(),
	}
	if _, err := s.c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return s, nil
}

// Validate reports whether spec is accepted by New.
func Validate(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("scheduler: invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start begins running the job until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.c.Start()
	if next := s.Next(); !next.IsZero() {
		appLog.Info("scheduler started", "job", s.name, "next", next.In(s.loc).Format(time.RFC3339))
	}
	go func() {
		<-ctx.Done()
		<-s.c.Stop().Done()
		appLog.Info("scheduler stopped", "job", s.name)
	}()
}

// Next returns the next scheduled run, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// RunNow executes the job synchronously unless a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return false, nil
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	start := time.Now()
	err := s.job(ctx)
	if err != nil {
		appLog.Error("scheduled job failed", err, "job", s.name, "elapsed", time.Since(start).String())
	} else {
		appLog.Info("scheduled job done", "job", s.name, "elapsed", time.Since(start).String())
	}
	return true, err
}

func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ran, _ := s.RunNow(ctx); !ran {
		appLog.Warn("scheduled job skipped; previous run still in progress", "job", s.name)
	}
}
