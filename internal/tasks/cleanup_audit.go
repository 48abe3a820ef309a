package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"
)

// AuditCleaner provides the ability to delete old audit report files.
type AuditCleaner interface {
	Cleanup(retention time.Duration) (int, error)
}

// CleanupAuditReportsTask removes audit reports older than the configured retention period.
type CleanupAuditReportsTask struct {
	RetentionDays int `json:"retention_days"`
}

// Config returns the queue configuration for audit cleanup tasks.
// Cleanup is cheap, so it keeps a short fixed timeout.
func (t CleanupAuditReportsTask) Config() backlite.QueueConfig {
	qs := currentQueueSettings()
	return backlite.QueueConfig{
		Name:        "cleanup_audit_reports",
		MaxAttempts: qs.MaxRetries,
		Backoff:     qs.RetryDelay,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   qs.RetentionDuration,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// CleanupAuditReportsProcessor creates a processor function for CleanupAuditReportsTask.
func CleanupAuditReportsProcessor(cleaner AuditCleaner) backlite.QueueProcessor[CleanupAuditReportsTask] {
	return func(ctx context.Context, task CleanupAuditReportsTask) error {
		if cleaner == nil {
			return fmt.Errorf("audit cleaner not configured")
		}

		retentionDays := task.RetentionDays
		if retentionDays <= 0 {
			retentionDays = 30
		}
		retention := time.Duration(retentionDays) * 24 * time.Hour

		deleted, err := cleaner.Cleanup(retention)
		if err != nil {
			return fmt.Errorf("cleanup audit reports: %w", err)
		}

		log.Printf("[TASK] Cleaned up %d audit reports older than %d days", deleted, retentionDays)
		return nil
	}
}

// NewCleanupAuditReportsQueue creates a backlite queue for audit cleanup tasks.
func NewCleanupAuditReportsQueue(cleaner AuditCleaner) backlite.Queue {
	return backlite.NewQueue(CleanupAuditReportsProcessor(cleaner))
}
