package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded when a receipt-transaction link changes.
const (
	AuditActionAutoMatched   = "auto_matched"
	AuditActionManualMatched = "manual_matched"
	AuditActionUnmatched     = "unmatched"
)

type MatchAuditLog struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	ReceiptID     uuid.UUID `gorm:"index"`
	TransactionID *uuid.UUID
	Action        string
	Confidence    float64
	MatchType     string
	PerformedBy   string
	CreatedAt     time.Time
}
