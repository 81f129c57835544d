package repository

import (
	"time"

	"tax-receipt-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BankTransactionRepository struct {
	db *gorm.DB
}

func NewBankTransactionRepository(db *gorm.DB) *BankTransactionRepository {
	return &BankTransactionRepository{db: db}
}

func (r *BankTransactionRepository) Create(tx *models.BankTransaction) error {
	return r.db.Create(tx).Error
}

func (r *BankTransactionRepository) GetByID(id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := r.db.First(&tx, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// FindCandidates returns a user's debit transactions within rangeDays of
// the receipt date, most recent first. Transactions already linked to a
// receipt are excluded so a transaction can never carry two matches.
func (r *BankTransactionRepository) FindCandidates(userID uuid.UUID, receiptDate time.Time, rangeDays int) ([]models.BankTransaction, error) {
	start := receiptDate.AddDate(0, 0, -rangeDays)
	end := receiptDate.AddDate(0, 0, rangeDays)

	var txs []models.BankTransaction
	err := r.db.
		Where("user_id = ?", userID).
		Where("direction = ?", models.DirectionDebit).
		Where("transaction_date BETWEEN ? AND ?", start, end).
		Where("receipt_id IS NULL").
		Order("transaction_date DESC").
		Find(&txs).Error
	return txs, err
}

// List returns a user's transactions with cursor pagination, optionally
// filtered by direction.
func (r *BankTransactionRepository) List(userID uuid.UUID, direction, cursor string, limit int) ([]models.BankTransaction, string, bool, error) {
	var txs []models.BankTransaction
	query := r.db.
		Where("user_id = ?", userID).
		Order("id ASC").
		Limit(limit + 1)

	if direction != "" && direction != "all" {
		query = query.Where("direction = ?", direction)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&txs).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(txs) > limit {
		hasMore = true
		nextCursor = txs[limit-1].ID.String()
		txs = txs[:limit]
	}

	return txs, nextCursor, hasMore, nil
}
