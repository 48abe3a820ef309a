package config

import (
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		HTTP
		Vault
		Matching
		Landing
		Database
		Audit
		Tasks
		Sync
		Watcher
		Global
	}

	HTTP struct {
		Port int32
		Host string
	}

	// Vault describes the Obsidian-style vault layout the pipeline
	// operates on. All sub-directories are relative to Dir.
	Vault struct {
		Dir          string
		MarkdownDir  string // book transcriptions
		LandingDir   string // per-book landing pages
		ClippingsDir string // raw Kindle clippings files
	}

	// Matching holds the text-matcher acceptance thresholds. They are
	// deliberately named configuration values so tests can probe
	// behavior exactly at a boundary.
	Matching struct {
		// FuzzyThreshold is the minimum similarity score for a fuzzy
		// window match to be accepted.
		FuzzyThreshold float64
		// PartialThreshold applies to leading/trailing portion matches
		// and is stricter than FuzzyThreshold, since partial matches
		// risk anchoring to the wrong location.
		PartialThreshold float64
		// MinMatchLength is the minimum annotation text length (in
		// runes) eligible for matching at all. Shorter snippets produce
		// too many spurious hits and are always reported unmatched.
		MinMatchLength int
		// PartialTokens is the number of leading/trailing tokens used
		// as a probe by the partial strategy.
		PartialTokens int
		// MinPartialTokens is the minimum annotation token count before
		// the partial strategy is attempted.
		MinPartialTokens int
		// TitleThreshold is the similarity cutoff when resolving a
		// book title to a vault file.
		TitleThreshold float64
	}

	Landing struct {
		// PreviewLength caps the number of runes of matched text shown
		// in a landing-page link.
		PreviewLength int
		// KeepStale keeps link entries whose annotation no longer
		// matches anything, flagged as stale, instead of dropping them.
		KeepStale bool
		// WorkKey selects the duplicate-edition grouping policy:
		// "title_author" (default) or "title".
		WorkKey string
	}

	Database struct {
		Path string
	}

	Audit struct {
		Dir           string
		RetentionDays int
	}

	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}

	Sync struct {
		Enabled  bool
		Schedule string // Cron format: "0 * * * *" = hourly
	}

	Watcher struct {
		Enabled  bool
		Debounce time.Duration
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8189)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("shutdown_timeout_in_seconds", 2)

	v.SetDefault("vault_dir", "")
	v.SetDefault("vault_markdown_dir", "Books/Markdowns")
	v.SetDefault("vault_landing_dir", "Books")
	v.SetDefault("vault_clippings_dir", "Kindle_highlights")

	// Matching defaults are conservative: false negatives are
	// preferred over mis-highlighting unrelated text.
	v.SetDefault("match_fuzzy_threshold", 0.8)
	v.SetDefault("match_partial_threshold", 0.9)
	v.SetDefault("match_min_length", 12)
	v.SetDefault("match_partial_tokens", 8)
	v.SetDefault("match_min_partial_tokens", 16)
	v.SetDefault("match_title_threshold", 0.7)

	v.SetDefault("landing_preview_length", 50)
	v.SetDefault("landing_keep_stale", true)
	v.SetDefault("landing_work_key", "title_author")

	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("audit_dir", "./audit")
	v.SetDefault("audit_retention_days", 30)

	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "0 * * * *") // Hourly at :00

	v.SetDefault("watcher_enabled", false)
	v.SetDefault("watcher_debounce", "5s")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "5m")
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		Vault: Vault{
			Dir:          v.GetString("VAULT_DIR"),
			MarkdownDir:  v.GetString("VAULT_MARKDOWN_DIR"),
			LandingDir:   v.GetString("VAULT_LANDING_DIR"),
			ClippingsDir: v.GetString("VAULT_CLIPPINGS_DIR"),
		},
		Matching: Matching{
			FuzzyThreshold:   v.GetFloat64("MATCH_FUZZY_THRESHOLD"),
			PartialThreshold: v.GetFloat64("MATCH_PARTIAL_THRESHOLD"),
			MinMatchLength:   v.GetInt("MATCH_MIN_LENGTH"),
			PartialTokens:    v.GetInt("MATCH_PARTIAL_TOKENS"),
			MinPartialTokens: v.GetInt("MATCH_MIN_PARTIAL_TOKENS"),
			TitleThreshold:   v.GetFloat64("MATCH_TITLE_THRESHOLD"),
		},
		Landing: Landing{
			PreviewLength: v.GetInt("LANDING_PREVIEW_LENGTH"),
			KeepStale:     v.GetBool("LANDING_KEEP_STALE"),
			WorkKey:       v.GetString("LANDING_WORK_KEY"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Audit: Audit{
			Dir:           v.GetString("AUDIT_DIR"),
			RetentionDays: v.GetInt("AUDIT_RETENTION_DAYS"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Sync: Sync{
			Enabled:  v.GetBool("SYNC_ENABLED"),
			Schedule: v.GetString("SYNC_SCHEDULE"),
		},
		Watcher: Watcher{
			Enabled:  v.GetBool("WATCHER_ENABLED"),
			Debounce: v.GetDuration("WATCHER_DEBOUNCE"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}
