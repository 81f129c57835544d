package models

import (
	"time"

	"github.com/google/uuid"
)

// AutoMatchRun records one bulk auto-match sweep over a user's receipts.
type AutoMatchRun struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"index"`
	TotalReceipts  int
	MatchedCount   int
	UnmatchedCount int
	FailedCount    int
	Status         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

// ImportBatch tracks a CSV upload of bank transactions.
type ImportBatch struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID `gorm:"index"`
	Filename          string
	TotalTransactions int
	ProcessedCount    int
	Status            string
	StartedAt         time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time
}
