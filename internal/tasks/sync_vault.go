package tasks

import (
	"context"
	"fmt"
	"log"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/marginalia/internal/syncer"
)

// SyncRunner runs the annotation sync pipeline. Implemented by
// syncer.Service; declared here so tasks stay decoupled from its
// construction.
type SyncRunner interface {
	Run(ctx context.Context, trigger string) (*syncer.Report, error)
	SyncBook(ctx context.Context, trigger, title string) (*syncer.Report, error)
}

// SyncVaultTask runs a full annotation sync across every book.
type SyncVaultTask struct {
	Trigger string `json:"trigger"`
}

// Config returns the queue configuration for full sync tasks. A full
// vault pass gets twice the per-task timeout budget.
func (t SyncVaultTask) Config() backlite.QueueConfig {
	qs := currentQueueSettings()
	return backlite.QueueConfig{
		Name:        "sync_vault",
		MaxAttempts: qs.MaxRetries,
		Backoff:     qs.RetryDelay,
		Timeout:     2 * qs.TaskTimeout,
		Retention: &backlite.Retention{
			Duration:   qs.RetentionDuration,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncVaultProcessor creates a processor function for SyncVaultTask.
func SyncVaultProcessor(runner SyncRunner) backlite.QueueProcessor[SyncVaultTask] {
	return func(ctx context.Context, task SyncVaultTask) error {
		if runner == nil {
			return fmt.Errorf("sync runner not configured")
		}

		trigger := task.Trigger
		if trigger == "" {
			trigger = "task"
		}

		report, err := runner.Run(ctx, trigger)
		if err != nil {
			return fmt.Errorf("sync vault: %w", err)
		}

		log.Printf("[TASK] Vault sync finished: applied=%d unmatched=%d failed=%d",
			report.Applied, report.Unmatched, report.Failed)
		return nil
	}
}

// NewSyncVaultQueue creates a backlite queue for full sync tasks.
func NewSyncVaultQueue(runner SyncRunner) backlite.Queue {
	return backlite.NewQueue(SyncVaultProcessor(runner))
}

// SyncBookTask syncs the annotations of a single book.
type SyncBookTask struct {
	Title   string `json:"title"`
	Trigger string `json:"trigger"`
}

// Config returns the queue configuration for per-book sync tasks.
func (t SyncBookTask) Config() backlite.QueueConfig {
	qs := currentQueueSettings()
	return backlite.QueueConfig{
		Name:        "sync_book",
		MaxAttempts: qs.MaxRetries,
		Backoff:     qs.RetryDelay / 2,
		Timeout:     qs.TaskTimeout,
		Retention: &backlite.Retention{
			Duration:   qs.RetentionDuration,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncBookProcessor creates a processor function for SyncBookTask.
func SyncBookProcessor(runner SyncRunner) backlite.QueueProcessor[SyncBookTask] {
	return func(ctx context.Context, task SyncBookTask) error {
		if runner == nil {
			return fmt.Errorf("sync runner not configured")
		}
		if task.Title == "" {
			return fmt.Errorf("sync book: empty title")
		}

		trigger := task.Trigger
		if trigger == "" {
			trigger = "task"
		}

		report, err := runner.SyncBook(ctx, trigger, task.Title)
		if err != nil {
			return fmt.Errorf("sync book %q: %w", task.Title, err)
		}

		log.Printf("[TASK] Book sync %q finished: applied=%d unmatched=%d",
			task.Title, report.Applied, report.Unmatched)
		return nil
	}
}

// NewSyncBookQueue creates a backlite queue for per-book sync tasks.
func NewSyncBookQueue(runner SyncRunner) backlite.Queue {
	return backlite.NewQueue(SyncBookProcessor(runner))
}
