package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is one scheduled unit of work. A returned error is logged and the
// schedule continues.
type Job func(ctx context.Context) error

// Scheduler runs a single job on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	logger  *slog.Logger
	mu      sync.Mutex
	entryID cron.EntryID
}

// New creates a scheduler. spec accepts standard five-field cron
// expressions and descriptors such as "@every 6h" or "@daily".
func New(spec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	return &Scheduler{
		// a slow run is skipped rather than overlapped
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		spec:   spec,
		logger: logger,
	}, nil
}

// Schedule registers job, replacing any previously scheduled job. ctx is
// passed to every invocation.
func (s *Scheduler) Schedule(ctx context.Context, job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}

	entryID, err := s.cron.AddFunc(s.spec, func() { s.run(ctx, job) })
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}
	s.entryID = entryID

	return nil
}

// Run starts the schedule and blocks until ctx is cancelled, then waits for
// any in-flight job to finish
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started", "schedule", s.spec, "next", s.Next())

	<-ctx.Done()

	s.logger.Info("scheduler stopping")
	<-s.cron.Stop().Done()
}

// Next returns the next run time, or "" when nothing is scheduled or the
// scheduler is not running
func (s *Scheduler) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entryID == 0 {
		return ""
	}
	next := s.cron.Entry(s.entryID).Next
	if next.IsZero() {
		return ""
	}
	return next.Format("2006-01-02 15:04:05")
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Info("scheduled run starting")
	if err := job(ctx); err != nil {
		s.logger.Error("scheduled run failed", "error", err)
		return
	}
	s.logger.Info("scheduled run finished", "next", s.Next())
}
