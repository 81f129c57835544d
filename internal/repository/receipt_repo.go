package repository

import (
	"encoding/json"
	"time"

	"tax-receipt-backend/internal/models"
	"tax-receipt-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// Expose DB if needed
func (r *ReceiptRepository) DB() *gorm.DB {
	return r.db
}

func (r *ReceiptRepository) Create(receipt *models.Receipt) error {
	return r.db.Create(receipt).Error
}

// GetByID fetch a single receipt by ID
func (r *ReceiptRepository) GetByID(id uuid.UUID) (*models.Receipt, error) {
	var receipt models.Receipt
	err := r.db.First(&receipt, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}

// ListUnmatched returns all processed receipts for a user that have no
// linked transaction yet, oldest first so sweeps work through backlog
// in upload order.
func (r *ReceiptRepository) ListUnmatched(userID uuid.UUID) ([]models.Receipt, error) {
	var receipts []models.Receipt
	err := r.db.
		Where("user_id = ?", userID).
		Where("status = ?", models.ReceiptStatusProcessed).
		Where("matched_transaction_id IS NULL").
		Order("receipt_date ASC").
		Find(&receipts).Error
	return receipts, err
}

// List returns a user's receipts with optional status filter and cursor
// pagination.
func (r *ReceiptRepository) List(userID uuid.UUID, status, cursor string, limit int) ([]models.Receipt, string, bool, error) {
	var receipts []models.Receipt
	query := r.db.
		Where("user_id = ?", userID).
		Order("id ASC").
		Limit(limit + 1)

	if status != "" && status != "all" {
		query = query.Where("status = ?", status)
	}
	if cursor != "" {
		query = query.Where("id > ?", cursor)
	}

	if err := query.Find(&receipts).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := false
	var nextCursor string
	if len(receipts) > limit {
		hasMore = true
		nextCursor = receipts[limit-1].ID.String()
		receipts = receipts[:limit]
	}

	return receipts, nextCursor, hasMore, nil
}

// AcceptMatch links a receipt and a transaction atomically: the receipt
// gains the transaction reference, confidence and score breakdown, the
// transaction gains the back-reference plus the receipt's tax fields,
// and an audit row records the action.
func (r *ReceiptRepository) AcceptMatch(receipt *models.Receipt, tx *models.BankTransaction, result *matching.MatchResult, performedBy string) error {
	detailsJSON, err := json.Marshal(result)
	if err != nil {
		return err
	}

	action := models.AuditActionAutoMatched
	if result.MatchType == matching.MatchTypeManual {
		action = models.AuditActionManualMatched
	}

	return r.db.Transaction(func(dbtx *gorm.DB) error {
		err := dbtx.Model(&models.Receipt{}).
			Where("id = ?", receipt.ID).
			Updates(map[string]interface{}{
				"status":                 models.ReceiptStatusMatched,
				"matched_transaction_id": tx.ID,
				"match_confidence":       result.Confidence,
				"match_details":          detailsJSON,
			}).Error
		if err != nil {
			return err
		}

		err = dbtx.Model(&models.BankTransaction{}).
			Where("id = ?", tx.ID).
			Updates(map[string]interface{}{
				"receipt_id":          receipt.ID,
				"is_business_expense": true,
				"tax_category":        receipt.TaxCategory,
				"gst_amount":          receipt.GSTAmount,
			}).Error
		if err != nil {
			return err
		}

		txID := tx.ID
		return dbtx.Create(&models.MatchAuditLog{
			ID:            uuid.New(),
			ReceiptID:     receipt.ID,
			TransactionID: &txID,
			Action:        action,
			Confidence:    result.Confidence,
			MatchType:     string(result.MatchType),
			PerformedBy:   performedBy,
			CreatedAt:     time.Now(),
		}).Error
	})
}

// ClearMatch undoes a previously accepted match on both sides.
func (r *ReceiptRepository) ClearMatch(receipt *models.Receipt, performedBy string) error {
	return r.db.Transaction(func(dbtx *gorm.DB) error {
		if receipt.MatchedTransactionID != nil {
			err := dbtx.Model(&models.BankTransaction{}).
				Where("id = ?", *receipt.MatchedTransactionID).
				Updates(map[string]interface{}{
					"receipt_id":          nil,
					"is_business_expense": false,
					"tax_category":        "",
					"gst_amount":          0,
				}).Error
			if err != nil {
				return err
			}
		}

		err := dbtx.Model(&models.Receipt{}).
			Where("id = ?", receipt.ID).
			Updates(map[string]interface{}{
				"status":                 models.ReceiptStatusProcessed,
				"matched_transaction_id": nil,
				"match_confidence":       0,
				"match_details":          nil,
			}).Error
		if err != nil {
			return err
		}

		return dbtx.Create(&models.MatchAuditLog{
			ID:            uuid.New(),
			ReceiptID:     receipt.ID,
			TransactionID: receipt.MatchedTransactionID,
			Action:        models.AuditActionUnmatched,
			PerformedBy:   performedBy,
			CreatedAt:     time.Now(),
		}).Error
	})
}

// Stats aggregates a user's receipts by status.
func (r *ReceiptRepository) Stats(userID uuid.UUID) (models.MatchStats, error) {
	var stats models.MatchStats
	var rows []statRow

	err := r.db.Model(&models.Receipt{}).
		Where("user_id = ?", userID).
		Select("status, COUNT(*) as count, COALESCE(SUM(total_amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		stats.Total += row.Count
		stats.TotalAmount += row.Sum

		switch row.Status {
		case models.ReceiptStatusUploaded:
			stats.UploadedCount = row.Count
			stats.UploadedSum = row.Sum
		case models.ReceiptStatusProcessed:
			stats.ProcessedCount = row.Count
			stats.ProcessedSum = row.Sum
		case models.ReceiptStatusMatched:
			stats.MatchedCount = row.Count
			stats.MatchedSum = row.Sum
		}
	}

	return stats, nil
}

type statRow struct {
	Status string
	Count  int64
	Sum    float64
}
