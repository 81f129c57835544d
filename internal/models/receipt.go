package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Receipt statuses.
const (
	ReceiptStatusUploaded  = "uploaded"
	ReceiptStatusProcessed = "processed"
	ReceiptStatusMatched   = "matched"
)

type Receipt struct {
	ID                   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID               uuid.UUID `gorm:"index"`
	ReceiptDate          time.Time `gorm:"column:receipt_date;index"`
	TotalAmount          float64
	Merchant             string
	TaxCategory          string
	GSTAmount            float64 `gorm:"column:gst_amount"`
	Status               string  `gorm:"index"`
	MatchedTransactionID *uuid.UUID
	MatchConfidence      float64
	MatchDetails         datatypes.JSON
	CreatedAt            time.Time
}
