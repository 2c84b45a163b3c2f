package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/stagelinehq/stageline/internal/store"
)

// RunDispatcher is the interface the scheduler uses to launch workflow runs.
// Satisfied by the run service (avoids an import cycle with the engine).
type RunDispatcher interface {
	Dispatch(ctx context.Context, workflow string, inputs map[string]any) (runID string, err error)
}

// Scheduler polls the store for due schedules and dispatches their workflows.
type Scheduler struct {
	store  store.Store
	runner RunDispatcher
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule IDs currently executing (dedup)
}

// NewScheduler creates a new Scheduler.
func NewScheduler(s store.Store, runner RunDispatcher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	// Run an initial tick immediately.
	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick checks all enabled schedules and runs those that are due.
func (s *Scheduler) Tick(ctx context.Context) {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, sched := range schedules {
		if sched.NextRunAt == nil || !sched.NextRunAt.After(now) {
			if !s.tryAcquire(sched.ID) {
				continue // already running (dedup)
			}
			if err := s.runSchedule(ctx, sched, now); err != nil {
				s.logger.Error("failed to run schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(sched.ID)
		}
	}
}

// runSchedule dispatches one schedule's workflow and updates its timestamps.
func (s *Scheduler) runSchedule(ctx context.Context, sched *store.Schedule, now time.Time) error {
	s.logger.Info("running schedule",
		slog.String("schedule_id", sched.ID),
		slog.String("workflow", sched.Workflow),
	)

	runID, err := s.runner.Dispatch(ctx, sched.Workflow, sched.Inputs)
	if err != nil {
		s.logger.Error("scheduled run failed",
			slog.String("schedule_id", sched.ID),
			slog.String("error", err.Error()),
		)
	}

	nextRun, nerr := s.NextRun(sched.Cron, now)
	if nerr != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sched.ID, nerr)
	}

	update := store.ScheduleUpdate{
		LastRunAt: &now,
		NextRunAt: &nextRun,
	}
	if runID != "" {
		update.LastRunID = &runID
	}
	return s.store.UpdateSchedule(ctx, sched.ID, update)
}

// tryAcquire returns true and marks the schedule as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

// release removes the schedule from the in-flight set.
func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// NextRun computes the next run time for a cron expression.
func (s *Scheduler) NextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	s.logger.Info("scheduler stopped")
	return nil
}

// RecoverMissed dispatches schedules whose next_run_at passed while the
// service was down, once each.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	schedules, err := s.store.ListSchedules(ctx, true)
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}

	now := time.Now().UTC()
	recovered := 0
	for _, sched := range schedules {
		if sched.NextRunAt != nil && sched.NextRunAt.Before(now) {
			if !s.tryAcquire(sched.ID) {
				continue
			}
			if err := s.runSchedule(ctx, sched, now); err != nil {
				s.logger.Error("failed to recover missed schedule",
					slog.String("schedule_id", sched.ID),
					slog.String("error", err.Error()),
				)
				s.release(sched.ID)
				continue
			}
			s.release(sched.ID)
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered missed schedules", slog.Int("count", recovered))
	}
	return nil
}
