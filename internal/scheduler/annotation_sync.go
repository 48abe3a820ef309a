package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/syncer"
)

// SyncRunner runs the annotation sync pipeline.
type SyncRunner interface {
	Run(ctx context.Context, trigger string) (*syncer.Report, error)
}

// AnnotationSyncScheduler runs the annotation sync on a cron schedule.
type AnnotationSyncScheduler struct {
	cfg    config.Sync
	runner SyncRunner

	cron       *cron.Cron
	entryID    cron.EntryID
	mu         sync.RWMutex
	isRunning  bool
	cancelFunc context.CancelFunc
}

// NewAnnotationSyncScheduler creates a new scheduler instance.
func NewAnnotationSyncScheduler(cfg config.Sync, runner SyncRunner) *AnnotationSyncScheduler {
	return &AnnotationSyncScheduler{
		cfg:    cfg,
		runner: runner,
		cron:   cron.New(cron.WithParser(cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow))),
	}
}

// Start begins the scheduler if periodic sync is enabled.
func (s *AnnotationSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if !s.cfg.Enabled {
		log.Printf("Annotation sync scheduler: disabled")
		return nil
	}

	if err := ValidateCronSchedule(s.cfg.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", s.cfg.Schedule, err)
	}

	entryID, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.runSync()
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	var cancelCtx context.Context
	cancelCtx, s.cancelFunc = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	nextRun, _ := NextRunTime(s.cfg.Schedule)
	log.Printf("Annotation sync scheduler: started with schedule '%s' (%s). Next run: %v",
		s.cfg.Schedule,
		CronDescription(s.cfg.Schedule),
		nextRun)

	go func() {
		<-cancelCtx.Done()
		s.Stop()
	}()

	return nil
}

// Stop gracefully stops the scheduler and waits for a running sync to finish.
func (s *AnnotationSyncScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron.Remove(s.entryID)

	s.isRunning = false
	s.cancelFunc = nil

	log.Printf("Annotation sync scheduler: stopped")
}

// Reschedule restarts the scheduler after a configuration change.
func (s *AnnotationSyncScheduler) Reschedule(cfg config.Sync) error {
	s.mu.Lock()
	wasRunning := s.isRunning
	s.cfg = cfg
	s.mu.Unlock()

	if wasRunning {
		s.Stop()
	}
	return s.Start(context.Background())
}

// RunNow triggers an immediate sync.
func (s *AnnotationSyncScheduler) RunNow() error {
	go s.runSync()
	return nil
}

// IsRunning returns whether the scheduler is active.
func (s *AnnotationSyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetNextRunTime returns when the next sync will occur.
func (s *AnnotationSyncScheduler) GetNextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}

	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *AnnotationSyncScheduler) runSync() {
	log.Printf("Annotation sync: starting scheduled run")
	startTime := time.Now()

	report, err := s.runner.Run(context.Background(), "schedule")
	if err != nil {
		log.Printf("Annotation sync: failed: %v", err)
		return
	}

	duration := time.Since(startTime)
	log.Printf("Annotation sync: applied %d highlights, %d unmatched, %d failed in %v",
		report.Applied, report.Unmatched, report.Failed, duration.Round(time.Millisecond))
}

// ValidateCronSchedule checks whether a 5-field cron expression parses.
func ValidateCronSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	return err
}

// CronDescription returns a human-readable description of a cron schedule.
func CronDescription(schedule string) string {
	switch schedule {
	case "0 * * * *":
		return "Every hour at :00"
	case "*/15 * * * *":
		return "Every 15 minutes"
	case "*/30 * * * *":
		return "Every 30 minutes"
	case "0 */6 * * *":
		return "Every 6 hours"
	case "0 0 * * *":
		return "Daily at midnight"
	case "0 0 * * 0":
		return "Weekly on Sunday at midnight"
	default:
		return "Custom schedule: " + schedule
	}
}

// NextRunTime calculates when a schedule fires next.
func NextRunTime(schedule string) (*time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, err
	}
	next := sched.Next(time.Now())
	return &next, nil
}
