package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/marginalia/internal/database"
	"github.com/mrlokans/marginalia/internal/scheduler"
	"github.com/mrlokans/marginalia/internal/tasks"
)

// SyncController exposes sync triggering and run history endpoints.
type SyncController struct {
	db        *database.Database
	client    *tasks.Client
	scheduler *scheduler.AnnotationSyncScheduler
}

func NewSyncController(db *database.Database, client *tasks.Client, sched *scheduler.AnnotationSyncScheduler) *SyncController {
	return &SyncController{db: db, client: client, scheduler: sched}
}

// TriggerSyncRequest is the optional request body for POST /api/sync/run.
type TriggerSyncRequest struct {
	// Title restricts the sync to a single book when set.
	Title string `json:"title,omitempty"`
}

// TriggerSync handles POST /api/sync/run. The sync runs asynchronously
// through the task queue; the response carries the enqueued task ID.
func (sc *SyncController) TriggerSync(c *gin.Context) {
	if sc.client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue is disabled"})
		return
	}

	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var op *backlite.TaskAddOp
	if req.Title != "" {
		op = sc.client.Add(tasks.SyncBookTask{Title: req.Title, Trigger: "api"})
	} else {
		op = sc.client.Add(tasks.SyncVaultTask{Trigger: "api"})
	}

	ids, err := op.Save()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task_id": ids[0],
		"message": "sync enqueued",
	})
}

// GetSchedule handles GET /api/sync/schedule.
func (sc *SyncController) GetSchedule(c *gin.Context) {
	if sc.scheduler == nil {
		c.JSON(http.StatusOK, gin.H{"enabled": false})
		return
	}

	resp := gin.H{"enabled": sc.scheduler.IsRunning()}
	if next := sc.scheduler.GetNextRunTime(); next != nil {
		resp["next_run"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// ListRuns handles GET /api/runs.
func (sc *SyncController) ListRuns(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	runs, err := sc.db.GetRecentRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetRun handles GET /api/runs/:id. The response includes the applied
// and unmatched records for the run.
func (sc *SyncController) GetRun(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	run, err := sc.db.GetRun(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	applied, err := sc.db.GetAppliedForRun(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	unmatched, err := sc.db.GetUnmatchedForRun(run.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":       run,
		"applied":   applied,
		"unmatched": unmatched,
	})
}

// GetDocumentHistory handles GET /api/documents/history. It lists
// every block reference ever written into the document named by the
// required "path" query parameter, most recent first.
func (sc *SyncController) GetDocumentHistory(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing path parameter"})
		return
	}

	applied, err := sc.db.GetAppliedForDocument(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    path,
		"applied": applied,
		"count":   len(applied),
	})
}

// GetStats handles GET /api/stats.
func (sc *SyncController) GetStats(c *gin.Context) {
	runs, applied, unmatched, err := sc.db.GetStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_runs":      runs,
		"total_applied":   applied,
		"total_unmatched": unmatched,
	})
}
