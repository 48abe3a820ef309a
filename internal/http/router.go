package http

import (
	"github.com/gin-gonic/gin"

	"github.com/mrlokans/marginalia/internal/database"
	"github.com/mrlokans/marginalia/internal/scheduler"
	"github.com/mrlokans/marginalia/internal/tasks"
)

// RouterConfig holds the dependencies of the HTTP layer. Optional
// components (task queue, scheduler) may be nil; the corresponding
// endpoints degrade gracefully.
type RouterConfig struct {
	Database   *database.Database
	TaskClient *tasks.Client
	Scheduler  *scheduler.AnnotationSyncScheduler
	Version    string
}

// NewRouter creates and configures the HTTP router with all endpoints.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	health := NewHealthController(cfg.Database, cfg.Version)
	syncController := NewSyncController(cfg.Database, cfg.TaskClient, cfg.Scheduler)

	// Health endpoints
	router.GET("/health", health.Status)
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "pong",
		})
	})

	// Sync endpoints
	router.POST("/api/sync/run", syncController.TriggerSync)
	router.GET("/api/sync/schedule", syncController.GetSchedule)

	// Run history endpoints
	router.GET("/api/runs", syncController.ListRuns)
	router.GET("/api/runs/:id", syncController.GetRun)
	router.GET("/api/stats", syncController.GetStats)
	router.GET("/api/documents/history", syncController.GetDocumentHistory)

	// Task management endpoints
	if cfg.TaskClient != nil {
		tasksController := NewTasksController(cfg.TaskClient)
		router.GET("/api/tasks/types", tasksController.ListTaskTypes)
		router.GET("/api/tasks/:id", tasksController.GetTaskStatus)
		router.POST("/api/tasks/:type/run", tasksController.RunTask)
	}

	return router
}
