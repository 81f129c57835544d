package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction directions as reported by the bank feed.
const (
	DirectionDebit  = "debit"
	DirectionCredit = "credit"
)

type BankTransaction struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID            uuid.UUID `gorm:"index"`
	ImportBatchID     uuid.UUID `gorm:"index"`
	TransactionDate   time.Time `gorm:"column:transaction_date;index"`
	Amount            float64 // signed, debits negative
	Direction         string  `gorm:"index"`
	MerchantName      string
	Description       string
	ReceiptID         *uuid.UUID
	IsBusinessExpense bool
	TaxCategory       string
	GSTAmount         float64 `gorm:"column:gst_amount"`
	CreatedAt         time.Time
}
