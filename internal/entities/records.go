package entities

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun records one execution of the annotation sync pipeline.
type SyncRun struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Trigger     string     `gorm:"size:20" json:"trigger"` // cli, http, schedule, watcher
	Status      RunStatus  `gorm:"size:20;default:'running'" json:"status"`
	Applied     int        `json:"applied"`
	Unmatched   int        `json:"unmatched"`
	Failed      int        `json:"failed"`
	Errors      string     `gorm:"type:text" json:"errors,omitempty"` // JSON array of errors
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AppliedHighlight records a block reference that was written into a
// document, so later runs and the report surfaces can inspect history.
type AppliedHighlight struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        uint      `gorm:"index" json:"run_id"`
	DocumentPath string    `gorm:"index;size:1024" json:"document_path"`
	BlockID      string    `gorm:"index;size:32" json:"block_id"`
	BookTitle    string    `gorm:"size:512" json:"book_title"`
	Author       string    `gorm:"size:256" json:"author"`
	Source       Source    `gorm:"size:20" json:"source"`
	Strategy     string    `gorm:"size:10" json:"strategy"`
	Confidence   float64   `json:"confidence"`
	SpanStart    int       `json:"span_start"`
	SpanEnd      int       `json:"span_end"`
	MatchedText  string    `gorm:"type:text" json:"matched_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// UnmatchedRecord is an annotation that could not be located in its
// document during a run, kept for operator follow-up.
type UnmatchedRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     uint      `gorm:"index" json:"run_id"`
	BookTitle string    `gorm:"size:512" json:"book_title"`
	Author    string    `gorm:"size:256" json:"author"`
	Source    Source    `gorm:"size:20" json:"source"`
	Text      string    `gorm:"type:text" json:"text"`
	Reason    string    `gorm:"size:256" json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (SyncRun) TableName() string {
	return "sync_runs"
}

func (AppliedHighlight) TableName() string {
	return "applied_highlights"
}

func (UnmatchedRecord) TableName() string {
	return "unmatched_records"
}
