package receipts

import (
	"errors"
	"sync"
	"time"

	"tax-receipt-backend/internal/logger"
	"tax-receipt-backend/internal/models"
	"tax-receipt-backend/internal/services/matching"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidReceiptDate is returned when a receipt has no parseable date,
// in which case no matching is attempted.
var ErrInvalidReceiptDate = errors.New("receipt has no valid date")

// ReceiptStore is the slice of receipt persistence the service needs.
type ReceiptStore interface {
	Create(receipt *models.Receipt) error
	GetByID(id uuid.UUID) (*models.Receipt, error)
	ListUnmatched(userID uuid.UUID) ([]models.Receipt, error)
	List(userID uuid.UUID, status, cursor string, limit int) ([]models.Receipt, string, bool, error)
	AcceptMatch(receipt *models.Receipt, tx *models.BankTransaction, result *matching.MatchResult, performedBy string) error
	ClearMatch(receipt *models.Receipt, performedBy string) error
	Stats(userID uuid.UUID) (models.MatchStats, error)
}

// TransactionStore is the slice of bank-transaction persistence the
// service needs.
type TransactionStore interface {
	Create(tx *models.BankTransaction) error
	GetByID(id uuid.UUID) (*models.BankTransaction, error)
	FindCandidates(userID uuid.UUID, receiptDate time.Time, rangeDays int) ([]models.BankTransaction, error)
	List(userID uuid.UUID, direction, cursor string, limit int) ([]models.BankTransaction, string, bool, error)
}

// RunStore persists sweep runs and import batches.
type RunStore interface {
	CreateRun(run *models.AutoMatchRun) error
	UpdateRun(run *models.AutoMatchRun) error
	GetRun(id uuid.UUID) (*models.AutoMatchRun, error)
	CreateImportBatch(batch *models.ImportBatch) error
	GetImportBatch(id uuid.UUID) (*models.ImportBatch, error)
	UpdateImportProgress(id uuid.UUID, count int) error
	CompleteImportBatch(id uuid.UUID, total int) error
}

type Service struct {
	receipts      ReceiptStore
	transactions  TransactionStore
	runs          RunStore
	progressCache sync.Map // run/batch ID -> *Progress
}

type Progress struct {
	ProcessedCount int    `json:"processed_count"`
	Total          int    `json:"total"`
	Status         string `json:"status"`
}

// AutoMatchSummary reports the outcome of one bulk sweep.
type AutoMatchSummary struct {
	RunID   uuid.UUID `json:"run_id"`
	Matched int       `json:"matched"`
	Total   int       `json:"total"`
}

func NewService(receipts ReceiptStore, transactions TransactionStore, runs RunStore) *Service {
	return &Service{
		receipts:     receipts,
		transactions: transactions,
		runs:         runs,
	}
}

// CreateReceipt stores a freshly extracted receipt. Receipts enter in
// processed status, ready for matching.
func (s *Service) CreateReceipt(receipt *models.Receipt) error {
	if receipt.ID == uuid.Nil {
		receipt.ID = uuid.New()
	}
	if receipt.Status == "" {
		receipt.Status = models.ReceiptStatusProcessed
	}
	receipt.CreatedAt = time.Now()
	return s.receipts.Create(receipt)
}

func (s *Service) GetReceipt(id uuid.UUID) (*models.Receipt, error) {
	return s.receipts.GetByID(id)
}

func (s *Service) ListReceipts(userID uuid.UUID, status, cursor string, limit int) ([]models.Receipt, string, bool, error) {
	return s.receipts.List(userID, status, cursor, limit)
}

// FindMatchingTransaction retrieves debit candidates around the receipt
// date and returns the best-scoring one at or above the match threshold.
// Candidate retrieval failures degrade to "no match": matching is
// advisory, never critical path.
func (s *Service) FindMatchingTransaction(receipt *models.Receipt, dateRangeDays int) (*matching.MatchResult, error) {
	if receipt.ReceiptDate.IsZero() {
		return nil, ErrInvalidReceiptDate
	}
	if dateRangeDays <= 0 {
		dateRangeDays = matching.DefaultDateRangeDays
	}

	candidates, err := s.transactions.FindCandidates(receipt.UserID, receipt.ReceiptDate, dateRangeDays)
	if err != nil {
		logger.Get().Warn("candidate retrieval failed, treating as no match",
			zap.String("receipt_id", receipt.ID.String()),
			zap.Error(err),
		)
		return nil, nil
	}

	return matching.BestMatch(receipt, candidates), nil
}

// AutoMatchReceipts sweeps a user's processed, unmatched receipts and
// persists every match that clears the auto-match threshold. Receipts
// are processed strictly sequentially; one receipt's failure is logged
// and counted, never aborting the sweep.
func (s *Service) AutoMatchReceipts(userID uuid.UUID) (AutoMatchSummary, error) {
	summary := AutoMatchSummary{}

	receipts, err := s.receipts.ListUnmatched(userID)
	if err != nil {
		return summary, err
	}

	run := &models.AutoMatchRun{
		ID:            uuid.New(),
		UserID:        userID,
		TotalReceipts: len(receipts),
		Status:        "running",
		StartedAt:     time.Now(),
		CreatedAt:     time.Now(),
	}
	if err := s.runs.CreateRun(run); err != nil {
		return summary, err
	}
	summary.RunID = run.ID
	summary.Total = len(receipts)

	for i := range receipts {
		receipt := &receipts[i]

		switch s.matchOne(receipt) {
		case outcomeMatched:
			run.MatchedCount++
		case outcomeUnmatched:
			run.UnmatchedCount++
		case outcomeFailed:
			run.FailedCount++
		}
		s.updateProgress(run.ID, i+1, len(receipts), "running")
	}

	run.Status = "completed"
	now := time.Now()
	run.CompletedAt = &now
	if err := s.runs.UpdateRun(run); err != nil {
		logger.Get().Error("failed to finalize auto-match run",
			zap.String("run_id", run.ID.String()),
			zap.Error(err),
		)
	}
	s.updateProgress(run.ID, len(receipts), len(receipts), "completed")

	summary.Matched = run.MatchedCount
	return summary, nil
}

type matchOutcome int

const (
	outcomeMatched matchOutcome = iota
	outcomeUnmatched
	outcomeFailed
)

// matchOne attempts and persists a single receipt's match. All failures
// resolve to an outcome so the sweep's per-receipt error boundary holds.
func (s *Service) matchOne(receipt *models.Receipt) matchOutcome {
	result, err := s.FindMatchingTransaction(receipt, matching.DefaultDateRangeDays)
	if err != nil {
		logger.Get().Warn("skipping receipt during sweep",
			zap.String("receipt_id", receipt.ID.String()),
			zap.Error(err),
		)
		return outcomeFailed
	}
	if result == nil || result.Confidence < matching.AutoMatchThreshold {
		return outcomeUnmatched
	}

	tx, err := s.transactions.GetByID(result.TransactionID)
	if err != nil {
		logger.Get().Error("matched transaction lookup failed",
			zap.String("receipt_id", receipt.ID.String()),
			zap.String("transaction_id", result.TransactionID.String()),
			zap.Error(err),
		)
		return outcomeFailed
	}

	if err := s.receipts.AcceptMatch(receipt, tx, result, "system"); err != nil {
		logger.Get().Error("failed to persist match",
			zap.String("receipt_id", receipt.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return outcomeFailed
	}

	logger.Get().Info("receipt auto-matched",
		zap.String("receipt_id", receipt.ID.String()),
		zap.String("transaction_id", tx.ID.String()),
		zap.Float64("confidence", result.Confidence),
		zap.String("match_type", string(result.MatchType)),
	)
	return outcomeMatched
}

// ManualMatch links a receipt to a transaction chosen by the user.
func (s *Service) ManualMatch(receiptID, transactionID uuid.UUID, performedBy string) (*matching.MatchResult, error) {
	receipt, err := s.receipts.GetByID(receiptID)
	if err != nil {
		return nil, err
	}
	tx, err := s.transactions.GetByID(transactionID)
	if err != nil {
		return nil, err
	}

	result := &matching.MatchResult{
		TransactionID: tx.ID,
		Confidence:    1.0,
		MatchType:     matching.MatchTypeManual,
	}
	if err := s.receipts.AcceptMatch(receipt, tx, result, performedBy); err != nil {
		return nil, err
	}
	return result, nil
}

// Unmatch clears a receipt's accepted match on both sides.
func (s *Service) Unmatch(receiptID uuid.UUID, performedBy string) error {
	receipt, err := s.receipts.GetByID(receiptID)
	if err != nil {
		return err
	}
	return s.receipts.ClearMatch(receipt, performedBy)
}

func (s *Service) MatchStats(userID uuid.UUID) (models.MatchStats, error) {
	return s.receipts.Stats(userID)
}

func (s *Service) GetRun(id uuid.UUID) (*models.AutoMatchRun, error) {
	return s.runs.GetRun(id)
}

// CreateImportBatch opens a CSV import of bank transactions.
func (s *Service) CreateImportBatch(userID uuid.UUID, filename string) (*models.ImportBatch, error) {
	batch := &models.ImportBatch{
		ID:        uuid.New(),
		UserID:    userID,
		Filename:  filename,
		Status:    "processing",
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
	}
	if err := s.runs.CreateImportBatch(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

// CreateTransaction inserts a single imported bank transaction row.
func (s *Service) CreateTransaction(batchID, userID uuid.UUID, date time.Time, amount float64, merchantName, description string) (*models.BankTransaction, error) {
	direction := models.DirectionCredit
	if amount < 0 {
		direction = models.DirectionDebit
	}

	tx := &models.BankTransaction{
		ID:              uuid.New(),
		UserID:          userID,
		ImportBatchID:   batchID,
		TransactionDate: date,
		Amount:          amount,
		Direction:       direction,
		MerchantName:    merchantName,
		Description:     description,
		CreatedAt:       time.Now(),
	}
	if err := s.transactions.Create(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Service) ListTransactions(userID uuid.UUID, direction, cursor string, limit int) ([]models.BankTransaction, string, bool, error) {
	return s.transactions.List(userID, direction, cursor, limit)
}

func (s *Service) UpdateImportProgress(batchID uuid.UUID, count int) {
	if err := s.runs.UpdateImportProgress(batchID, count); err != nil {
		logger.Get().Warn("failed to update import progress",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
	}
	s.updateProgress(batchID, count, 0, "processing")
}

func (s *Service) CompleteImportBatch(batchID uuid.UUID, total int) {
	if err := s.runs.CompleteImportBatch(batchID, total); err != nil {
		logger.Get().Error("failed to complete import batch",
			zap.String("batch_id", batchID.String()),
			zap.Error(err),
		)
	}
	s.updateProgress(batchID, total, total, "completed")
}

func (s *Service) GetImportBatch(id uuid.UUID) (*models.ImportBatch, error) {
	return s.runs.GetImportBatch(id)
}

// Progress returns the cached in-process progress for a run or import,
// falling back to nothing when the process restarted.
func (s *Service) Progress(id uuid.UUID) (*Progress, bool) {
	val, ok := s.progressCache.Load(id)
	if !ok {
		return nil, false
	}
	return val.(*Progress), true
}

func (s *Service) updateProgress(id uuid.UUID, processed, total int, status string) {
	s.progressCache.Store(id, &Progress{
		ProcessedCount: processed,
		Total:          total,
		Status:         status,
	})
}
