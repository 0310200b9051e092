// Package scheduler triggers periodic maintenance jobs on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/libmanage/internal/config"
)

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCronSchedule accepts five-field cron expressions.
func ValidateCronSchedule(schedule string) error {
	_, err := scheduleParser.Parse(schedule)
	return err
}

// SweepJob starts one overdue sweep, usually by enqueueing a task.
type SweepJob func(ctx context.Context) error

// OverdueSweepScheduler runs the overdue sweep on the configured schedule.
type OverdueSweepScheduler struct {
	config config.Sweep
	job    SweepJob

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.RWMutex
	isRunning bool
	lastRun   *time.Time
	lastErr   error
}

func NewOverdueSweepScheduler(cfg config.Sweep, job SweepJob) *OverdueSweepScheduler {
	return &OverdueSweepScheduler{
		config: cfg,
		job:    job,
		cron:   cron.New(cron.WithParser(scheduleParser)),
	}
}

// Start schedules the job when the sweep is enabled. The scheduler stops
// when ctx is cancelled.
func (s *OverdueSweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.config.Enabled {
		log.Printf("[SWEEP] Overdue sweep scheduler: disabled")
		return nil
	}
	if err := ValidateCronSchedule(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.config.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.config.Schedule, func() { s.run(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule overdue sweep: %w", err)
	}
	s.entryID = entryID
	s.cron.Start()
	s.isRunning = true

	log.Printf("[SWEEP] Overdue sweep scheduler: started with schedule '%s'. Next run: %v",
		s.config.Schedule, s.cron.Entry(entryID).Next)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop waits for a running job to finish.
func (s *OverdueSweepScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cron.Remove(s.entryID)
	log.Printf("[SWEEP] Overdue sweep scheduler: stopped")
}

// RunNow triggers the job outside the schedule.
func (s *OverdueSweepScheduler) RunNow(ctx context.Context) error {
	return s.run(ctx)
}

func (s *OverdueSweepScheduler) run(ctx context.Context) error {
	err := s.job(ctx)
	now := time.Now().UTC()

	s.mu.Lock()
	s.lastRun = &now
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		log.Printf("[SWEEP] Overdue sweep failed: %v", err)
	}
	return err
}

func (s *OverdueSweepScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// LastRun returns when the job last ran and its error, if any.
func (s *OverdueSweepScheduler) LastRun() (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun, s.lastErr
}

// NextRunTime is nil while the scheduler is stopped.
func (s *OverdueSweepScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	next := s.cron.Entry(s.entryID).Next
	return &next
}
