package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/marginalia/internal/tasks"
)

// TasksController handles task queue management endpoints.
type TasksController struct {
	client *tasks.Client
}

// NewTasksController creates a new TasksController.
func NewTasksController(client *tasks.Client) *TasksController {
	return &TasksController{client: client}
}

// TaskTypeInfo describes an available task type.
type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Queue       string `json:"queue"`
}

// ListTaskTypes handles GET /api/tasks/types
// Returns the list of available task types that can be triggered.
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := []TaskTypeInfo{
		{
			Type:        "sync_vault",
			Description: "Sync all annotations across the vault",
			Queue:       "sync_vault",
		},
		{
			Type:        "sync_book",
			Description: "Sync annotations for a single book",
			Queue:       "sync_book",
		},
		{
			Type:        "cleanup_audit_reports",
			Description: "Delete audit reports past their retention period",
			Queue:       "cleanup_audit_reports",
		},
	}

	c.JSON(http.StatusOK, gin.H{
		"task_types": types,
	})
}

// GetTaskStatus handles GET /api/tasks/:id
// Returns the status of a specific task.
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	taskID := c.Param("id")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task ID is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.client.Status(ctx, taskID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     taskID,
		"status": taskStatusToString(status),
	})
}

// RunTaskRequest is the request body for running a task.
type RunTaskRequest struct {
	// Title is required for sync_book tasks.
	Title string `json:"title,omitempty"`
	// RetentionDays is optional for cleanup_audit_reports tasks.
	RetentionDays int `json:"retention_days,omitempty"`
}

// RunTask handles POST /api/tasks/:type/run
// Manually enqueues a task of the specified type.
func (tc *TasksController) RunTask(c *gin.Context) {
	taskType := c.Param("type")

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		_ = c.ShouldBindJSON(&req)
	}

	var task backlite.Task
	switch taskType {
	case "sync_vault":
		task = tasks.SyncVaultTask{Trigger: "api"}

	case "sync_book":
		if req.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "title is required for sync_book task"})
			return
		}
		task = tasks.SyncBookTask{Title: req.Title, Trigger: "api"}

	case "cleanup_audit_reports":
		task = tasks.CleanupAuditReportsTask{RetentionDays: req.RetentionDays}

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown task type: %s", taskType)})
		return
	}

	ids, err := tc.client.Add(task).Save()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"task_id": ids[0],
		"type":    taskType,
		"message": "task enqueued",
	})
}

func taskStatusToString(status backlite.TaskStatus) string {
	switch status {
	case backlite.TaskStatusPending:
		return "pending"
	case backlite.TaskStatusRunning:
		return "running"
	case backlite.TaskStatusSuccess:
		return "success"
	case backlite.TaskStatusFailure:
		return "failure"
	case backlite.TaskStatusNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
