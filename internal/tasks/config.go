package tasks

import (
	"sync"
	"time"
)

// Config holds configuration for the task queue system.
type Config struct {
	// Workers is the number of concurrent task workers. Default: 2
	Workers int

	// MaxRetries is the default maximum retry attempts for failed tasks. Default: 3
	MaxRetries int

	// RetryDelay is the default backoff duration between retries. Default: 1m
	RetryDelay time.Duration

	// TaskTimeout is the default timeout for task execution. Default: 5m
	TaskTimeout time.Duration

	// ReleaseAfter is when stuck tasks are released back to queue. Default: 15m
	ReleaseAfter time.Duration

	// CleanupInterval is how often to clean up completed tasks. Default: 1h
	CleanupInterval time.Duration

	// RetentionDuration is how long to keep completed tasks. Default: 24h
	RetentionDuration time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		MaxRetries:        3,
		RetryDelay:        1 * time.Minute,
		TaskTimeout:       5 * time.Minute,
		ReleaseAfter:      15 * time.Minute,
		CleanupInterval:   1 * time.Hour,
		RetentionDuration: 24 * time.Hour,
	}
}

// Queue settings feed the QueueConfig of every task type. backlite
// reads queue configuration from the task's Config method, not from
// the client, so NewClient publishes its Config here once.
var (
	queueMu       sync.RWMutex
	queueSettings = DefaultConfig()
)

func setQueueSettings(cfg Config) {
	defaults := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaults.RetryDelay
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = defaults.TaskTimeout
	}
	if cfg.RetentionDuration <= 0 {
		cfg.RetentionDuration = defaults.RetentionDuration
	}
	queueMu.Lock()
	queueSettings = cfg
	queueMu.Unlock()
}

func currentQueueSettings() Config {
	queueMu.RLock()
	defer queueMu.RUnlock()
	return queueSettings
}
