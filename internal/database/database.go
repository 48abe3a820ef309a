package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/marginalia/internal/entities"
)

type Database struct {
	DB *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	err = db.AutoMigrate(
		&entities.SyncRun{},
		&entities.AppliedHighlight{},
		&entities.UnmatchedRecord{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database initialized successfully at %s", dbPath)

	return &Database{DB: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// StartRun opens a new sync run record in the running state.
func (d *Database) StartRun(trigger string) (*entities.SyncRun, error) {
	run := &entities.SyncRun{
		Trigger:   trigger,
		Status:    entities.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := d.DB.Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteRun finalizes a run with its counters and status.
func (d *Database) CompleteRun(run *entities.SyncRun) error {
	now := time.Now()
	run.CompletedAt = &now
	return d.DB.Save(run).Error
}

func (d *Database) GetRun(id uint) (*entities.SyncRun, error) {
	var run entities.SyncRun
	if err := d.DB.First(&run, id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (d *Database) GetRecentRuns(limit int) ([]entities.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []entities.SyncRun
	err := d.DB.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func (d *Database) SaveAppliedHighlight(h *entities.AppliedHighlight) error {
	return d.DB.Create(h).Error
}

func (d *Database) SaveUnmatched(r *entities.UnmatchedRecord) error {
	return d.DB.Create(r).Error
}

func (d *Database) GetAppliedForRun(runID uint) ([]entities.AppliedHighlight, error) {
	var out []entities.AppliedHighlight
	err := d.DB.Where("run_id = ?", runID).Order("document_path ASC, span_start ASC").Find(&out).Error
	return out, err
}

func (d *Database) GetUnmatchedForRun(runID uint) ([]entities.UnmatchedRecord, error) {
	var out []entities.UnmatchedRecord
	err := d.DB.Where("run_id = ?", runID).Order("book_title ASC").Find(&out).Error
	return out, err
}

// GetAppliedForDocument lists every block reference ever written into
// one document, most recent first.
func (d *Database) GetAppliedForDocument(documentPath string) ([]entities.AppliedHighlight, error) {
	var out []entities.AppliedHighlight
	err := d.DB.Where("document_path = ?", documentPath).
		Order("created_at DESC").Find(&out).Error
	return out, err
}

func (d *Database) GetStats() (totalRuns, totalApplied, totalUnmatched int64, err error) {
	if err = d.DB.Model(&entities.SyncRun{}).Count(&totalRuns).Error; err != nil {
		return
	}
	if err = d.DB.Model(&entities.AppliedHighlight{}).Count(&totalApplied).Error; err != nil {
		return
	}
	err = d.DB.Model(&entities.UnmatchedRecord{}).Count(&totalUnmatched).Error
	return
}
