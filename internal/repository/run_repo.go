package repository

import (
	"time"

	"tax-receipt-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunRepository persists auto-match runs and CSV import batches.
type RunRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) CreateRun(run *models.AutoMatchRun) error {
	return r.db.Create(run).Error
}

func (r *RunRepository) UpdateRun(run *models.AutoMatchRun) error {
	return r.db.Save(run).Error
}

func (r *RunRepository) GetRun(id uuid.UUID) (*models.AutoMatchRun, error) {
	var run models.AutoMatchRun
	if err := r.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func (r *RunRepository) CreateImportBatch(batch *models.ImportBatch) error {
	return r.db.Create(batch).Error
}

func (r *RunRepository) GetImportBatch(id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	if err := r.db.First(&batch, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// UpdateImportProgress bumps the processed count of a running import.
func (r *RunRepository) UpdateImportProgress(id uuid.UUID, count int) error {
	return r.db.Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Update("processed_count", count).
		Error
}

// CompleteImportBatch marks an import as done with its final totals.
func (r *RunRepository) CompleteImportBatch(id uuid.UUID, total int) error {
	now := time.Now()
	return r.db.Model(&models.ImportBatch{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_count":    total,
			"total_transactions": total,
			"status":             "completed",
			"completed_at":       now,
		}).Error
}
