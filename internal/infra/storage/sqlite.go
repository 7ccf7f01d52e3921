package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OrderRecord journals an accepted order submission.
type OrderRecord struct {
	ID          uint   `gorm:"primaryKey"`
	UUID        string `gorm:"uniqueIndex;size:64"`
	Market      string `gorm:"index;size:20"`
	Side        string `gorm:"size:8"`
	OrdType     string `gorm:"size:8"`
	Price       float64
	Volume      float64
	SubmittedAt time.Time
}

// ExecutionRecord journals a terminal order outcome with its
// execution-quality metrics.
type ExecutionRecord struct {
	ID             uint   `gorm:"primaryKey"`
	UUID           string `gorm:"index;size:64"`
	Market         string `gorm:"index;size:20"`
	IsBuy          bool
	AvgFillPrice   float64
	FilledVolume   float64
	FillRate       float64
	AvgSlippageBps float64
	CompletedAt    time.Time
}

// Journal persists the engine's own order activity to SQLite. This is
// an audit trail of submitted orders and fills, not market-data
// history.
type Journal struct {
	db *gorm.DB
}

// NewJournal opens (or creates) the journal database at path.
func NewJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.AutoMigrate(&OrderRecord{}, &ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate journal database: %w", err)
	}
	return &Journal{db: db}, nil
}

// SaveOrder records an accepted submission.
func (j *Journal) SaveOrder(rec *OrderRecord) error {
	return j.db.Create(rec).Error
}

// SaveExecution records a terminal order outcome.
func (j *Journal) SaveExecution(rec *ExecutionRecord) error {
	return j.db.Create(rec).Error
}

// RecentExecutions returns the latest completed orders, newest first.
func (j *Journal) RecentExecutions(limit int) ([]ExecutionRecord, error) {
	var out []ExecutionRecord
	err := j.db.Order("completed_at desc").Limit(limit).Find(&out).Error
	return out, err
}
