package entrypoint

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/marginalia/internal/audit"
	"github.com/mrlokans/marginalia/internal/config"
	"github.com/mrlokans/marginalia/internal/database"
	http_controllers "github.com/mrlokans/marginalia/internal/http"
	"github.com/mrlokans/marginalia/internal/scheduler"
	"github.com/mrlokans/marginalia/internal/syncer"
	"github.com/mrlokans/marginalia/internal/tasks"
	"github.com/mrlokans/marginalia/internal/vault"
	"github.com/mrlokans/marginalia/internal/watcher"
)

// ShutdownFunc is called during graceful shutdown to clean up resources.
type ShutdownFunc func(ctx context.Context)

func Serve(router *gin.Engine, cfg *config.Config, onShutdown ShutdownFunc) {
	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler: router,
	}

	go func() {
		fmt.Printf("Starting server at %s:%d\n", cfg.HTTP.Host, cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutdown Server, waiting %v before killing\n", timeout)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Call shutdown callback first (e.g., to stop task queue)
	if onShutdown != nil {
		onShutdown(ctx)
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}

	log.Println("Server exiting")
}

// checkVault validates that the vault directory exists and is writable.
func checkVault(dir string) error {
	if dir == "" {
		return fmt.Errorf("vault directory is not set (VAULT_DIR)")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("vault directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path %s is not a directory", dir)
	}

	probe := filepath.Join(dir, ".marginalia")
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("vault directory %s is not writable: %w", dir, err)
	}
	f.Close()
	if err := os.Remove(probe); err != nil {
		return fmt.Errorf("could not remove probe file from %s: %w", dir, err)
	}
	return nil
}

func Run(cfg *config.Config, version string) {
	log.Printf("Starting Marginalia v%s", version)

	if err := checkVault(cfg.Vault.Dir); err != nil {
		log.Fatalf("Vault check failed: %v", err)
	}
	log.Printf("Vault directory: %s", cfg.Vault.Dir)

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("Error closing database: %v", err)
		}
	}()

	// Create auditor for saving per-run JSON reports
	auditor := audit.NewAuditor(cfg.Audit.Dir)

	v, err := vault.New(cfg.Vault, cfg.Matching.TitleThreshold)
	if err != nil {
		log.Fatalf("Failed to open vault: %v", err)
	}

	syncService := syncer.New(cfg, v, db, auditor)

	// Initialize task queue if enabled
	var taskClient *tasks.Client
	var taskCtxCancel context.CancelFunc
	if cfg.Tasks.Enabled {
		taskCfg := tasks.Config{
			Workers:           cfg.Tasks.Workers,
			MaxRetries:        cfg.Tasks.MaxRetries,
			RetryDelay:        cfg.Tasks.RetryDelay,
			TaskTimeout:       cfg.Tasks.TaskTimeout,
			ReleaseAfter:      cfg.Tasks.ReleaseAfter,
			CleanupInterval:   cfg.Tasks.CleanupInterval,
			RetentionDuration: cfg.Tasks.RetentionDuration,
		}

		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg)
		if err != nil {
			log.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Printf("Error closing task client: %v", err)
			}
		}()

		// Register task queues
		taskClient.Register(
			tasks.NewSyncVaultQueue(syncService),
			tasks.NewSyncBookQueue(syncService),
			tasks.NewCleanupAuditReportsQueue(auditor),
		)

		// Start task workers in background
		var taskCtx context.Context
		taskCtx, taskCtxCancel = context.WithCancel(context.Background())
		go taskClient.Start(taskCtx)
	}

	// Start the cron scheduler if periodic sync is enabled
	sched := scheduler.NewAnnotationSyncScheduler(cfg.Sync, syncService)
	if err := sched.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Watch the clippings directory if enabled
	var watcherCancel context.CancelFunc
	if cfg.Watcher.Enabled {
		clippingsDir := filepath.Join(cfg.Vault.Dir, cfg.Vault.ClippingsDir)
		trigger := func() {
			if taskClient != nil {
				if _, err := taskClient.Add(tasks.SyncVaultTask{Trigger: "watcher"}).Save(); err != nil {
					log.Printf("Failed to enqueue watcher sync: %v", err)
				}
				return
			}
			if _, err := syncService.Run(context.Background(), "watcher"); err != nil {
				log.Printf("Watcher sync failed: %v", err)
			}
		}

		w := watcher.New(cfg.Watcher, clippingsDir, trigger)

		var watcherCtx context.Context
		watcherCtx, watcherCancel = context.WithCancel(context.Background())
		go func() {
			if err := w.Watch(watcherCtx); err != nil {
				log.Printf("Watcher stopped with error: %v", err)
			}
		}()
	}

	routerCfg := http_controllers.RouterConfig{
		Database:   db,
		TaskClient: taskClient,
		Scheduler:  sched,
		Version:    version,
	}

	router := http_controllers.NewRouter(routerCfg)

	onShutdown := func(ctx context.Context) {
		if watcherCancel != nil {
			watcherCancel()
		}
		sched.Stop()
		if taskClient != nil && taskCtxCancel != nil {
			taskClient.Stop(ctx)
			taskCtxCancel()
		}
	}

	Serve(router, cfg, onShutdown)
}
