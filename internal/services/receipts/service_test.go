package receipts

import (
	"errors"
	"sort"
	"testing"
	"time"

	"tax-receipt-backend/internal/models"
	"tax-receipt-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory fakes implementing the service's store interfaces.

type fakeReceiptStore struct {
	receipts      []*models.Receipt
	audits        []models.MatchAuditLog
	failAcceptFor map[uuid.UUID]bool
	listErr       error
}

func newFakeReceiptStore() *fakeReceiptStore {
	return &fakeReceiptStore{failAcceptFor: map[uuid.UUID]bool{}}
}

func (f *fakeReceiptStore) Create(receipt *models.Receipt) error {
	f.receipts = append(f.receipts, receipt)
	return nil
}

func (f *fakeReceiptStore) GetByID(id uuid.UUID) (*models.Receipt, error) {
	for _, r := range f.receipts {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, errors.New("receipt not found")
}

func (f *fakeReceiptStore) ListUnmatched(userID uuid.UUID) ([]models.Receipt, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Receipt
	for _, r := range f.receipts {
		if r.UserID == userID && r.Status == models.ReceiptStatusProcessed && r.MatchedTransactionID == nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeReceiptStore) List(userID uuid.UUID, status, cursor string, limit int) ([]models.Receipt, string, bool, error) {
	var out []models.Receipt
	for _, r := range f.receipts {
		if r.UserID == userID && (status == "" || status == "all" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, "", false, nil
}

func (f *fakeReceiptStore) AcceptMatch(receipt *models.Receipt, tx *models.BankTransaction, result *matching.MatchResult, performedBy string) error {
	if f.failAcceptFor[receipt.ID] {
		return errors.New("simulated persistence failure")
	}

	stored, err := f.GetByID(receipt.ID)
	if err != nil {
		return err
	}
	stored.Status = models.ReceiptStatusMatched
	stored.MatchedTransactionID = &tx.ID
	stored.MatchConfidence = result.Confidence

	tx.ReceiptID = &stored.ID
	tx.IsBusinessExpense = true
	tx.TaxCategory = stored.TaxCategory
	tx.GSTAmount = stored.GSTAmount

	action := models.AuditActionAutoMatched
	if result.MatchType == matching.MatchTypeManual {
		action = models.AuditActionManualMatched
	}
	f.audits = append(f.audits, models.MatchAuditLog{
		ReceiptID:     stored.ID,
		TransactionID: &tx.ID,
		Action:        action,
		Confidence:    result.Confidence,
		MatchType:     string(result.MatchType),
		PerformedBy:   performedBy,
	})
	return nil
}

func (f *fakeReceiptStore) ClearMatch(receipt *models.Receipt, performedBy string) error {
	stored, err := f.GetByID(receipt.ID)
	if err != nil {
		return err
	}
	stored.Status = models.ReceiptStatusProcessed
	stored.MatchedTransactionID = nil
	stored.MatchConfidence = 0
	f.audits = append(f.audits, models.MatchAuditLog{
		ReceiptID:   stored.ID,
		Action:      models.AuditActionUnmatched,
		PerformedBy: performedBy,
	})
	return nil
}

func (f *fakeReceiptStore) Stats(userID uuid.UUID) (models.MatchStats, error) {
	var stats models.MatchStats
	for _, r := range f.receipts {
		if r.UserID != userID {
			continue
		}
		stats.Total++
		stats.TotalAmount += r.TotalAmount
		if r.Status == models.ReceiptStatusMatched {
			stats.MatchedCount++
			stats.MatchedSum += r.TotalAmount
		}
	}
	return stats, nil
}

type fakeTransactionStore struct {
	txs           []*models.BankTransaction
	candidatesErr error
}

func (f *fakeTransactionStore) Create(tx *models.BankTransaction) error {
	f.txs = append(f.txs, tx)
	return nil
}

func (f *fakeTransactionStore) GetByID(id uuid.UUID) (*models.BankTransaction, error) {
	for _, tx := range f.txs {
		if tx.ID == id {
			return tx, nil
		}
	}
	return nil, errors.New("transaction not found")
}

func (f *fakeTransactionStore) FindCandidates(userID uuid.UUID, receiptDate time.Time, rangeDays int) ([]models.BankTransaction, error) {
	if f.candidatesErr != nil {
		return nil, f.candidatesErr
	}

	start := receiptDate.AddDate(0, 0, -rangeDays)
	end := receiptDate.AddDate(0, 0, rangeDays)

	var out []models.BankTransaction
	for _, tx := range f.txs {
		if tx.UserID != userID || tx.Direction != models.DirectionDebit || tx.ReceiptID != nil {
			continue
		}
		if tx.TransactionDate.Before(start) || tx.TransactionDate.After(end) {
			continue
		}
		out = append(out, *tx)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	return out, nil
}

func (f *fakeTransactionStore) List(userID uuid.UUID, direction, cursor string, limit int) ([]models.BankTransaction, string, bool, error) {
	var out []models.BankTransaction
	for _, tx := range f.txs {
		if tx.UserID == userID {
			out = append(out, *tx)
		}
	}
	return out, "", false, nil
}

type fakeRunStore struct {
	runs    map[uuid.UUID]*models.AutoMatchRun
	batches map[uuid.UUID]*models.ImportBatch
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:    map[uuid.UUID]*models.AutoMatchRun{},
		batches: map[uuid.UUID]*models.ImportBatch{},
	}
}

func (f *fakeRunStore) CreateRun(run *models.AutoMatchRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunStore) UpdateRun(run *models.AutoMatchRun) error {
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunStore) GetRun(id uuid.UUID) (*models.AutoMatchRun, error) {
	run, ok := f.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	return run, nil
}

func (f *fakeRunStore) CreateImportBatch(batch *models.ImportBatch) error {
	f.batches[batch.ID] = batch
	return nil
}

func (f *fakeRunStore) GetImportBatch(id uuid.UUID) (*models.ImportBatch, error) {
	batch, ok := f.batches[id]
	if !ok {
		return nil, errors.New("batch not found")
	}
	return batch, nil
}

func (f *fakeRunStore) UpdateImportProgress(id uuid.UUID, count int) error {
	if batch, ok := f.batches[id]; ok {
		batch.ProcessedCount = count
	}
	return nil
}

func (f *fakeRunStore) CompleteImportBatch(id uuid.UUID, total int) error {
	if batch, ok := f.batches[id]; ok {
		batch.ProcessedCount = total
		batch.TotalTransactions = total
		batch.Status = "completed"
	}
	return nil
}

// Test helpers.

func testService() (*Service, *fakeReceiptStore, *fakeTransactionStore, *fakeRunStore) {
	receipts := newFakeReceiptStore()
	txs := &fakeTransactionStore{}
	runs := newFakeRunStore()
	return NewService(receipts, txs, runs), receipts, txs, runs
}

func processedReceipt(userID uuid.UUID, date time.Time, amount float64, merchant string) *models.Receipt {
	return &models.Receipt{
		ID:          uuid.New(),
		UserID:      userID,
		ReceiptDate: date,
		TotalAmount: amount,
		Merchant:    merchant,
		TaxCategory: "D5",
		GSTAmount:   amount / 11,
		Status:      models.ReceiptStatusProcessed,
	}
}

func debitTx(userID uuid.UUID, date time.Time, amount float64, merchantName string) *models.BankTransaction {
	return &models.BankTransaction{
		ID:              uuid.New(),
		UserID:          userID,
		TransactionDate: date,
		Amount:          amount,
		Direction:       models.DirectionDebit,
		MerchantName:    merchantName,
	}
}

func mar(d int) time.Time {
	return time.Date(2024, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestFindMatchingTransaction(t *testing.T) {
	t.Run("returns best candidate above threshold", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))

		match := debitTx(userID, mar(10), -45.00, "WOOLWORTHS METRO 1234")
		require.NoError(t, txs.Create(match))
		require.NoError(t, txs.Create(debitTx(userID, mar(12), -130.00, "Caltex Fuel")))

		result, err := svc.FindMatchingTransaction(r, 7)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, match.ID, result.TransactionID)
		assert.Equal(t, matching.MatchTypeExact, result.MatchType)
	})

	t.Run("missing receipt date is an invalid input", func(t *testing.T) {
		svc, _, _, _ := testService()
		r := processedReceipt(uuid.New(), time.Time{}, 45.00, "Woolworths Metro")

		result, err := svc.FindMatchingTransaction(r, 7)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrInvalidReceiptDate)
	})

	t.Run("retrieval failure degrades to no match", func(t *testing.T) {
		svc, _, txs, _ := testService()
		txs.candidatesErr = errors.New("connection refused")

		r := processedReceipt(uuid.New(), mar(10), 45.00, "Woolworths Metro")
		result, err := svc.FindMatchingTransaction(r, 7)
		assert.Nil(t, result)
		assert.NoError(t, err)
	})

	t.Run("ignores other users and credit transactions", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))

		other := debitTx(uuid.New(), mar(10), -45.00, "Woolworths Metro")
		require.NoError(t, txs.Create(other))

		credit := debitTx(userID, mar(10), 45.00, "Woolworths Metro")
		credit.Direction = models.DirectionCredit
		require.NoError(t, txs.Create(credit))

		result, err := svc.FindMatchingTransaction(r, 7)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("skips transactions already linked to a receipt", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))

		taken := debitTx(userID, mar(10), -45.00, "Woolworths Metro")
		otherReceipt := uuid.New()
		taken.ReceiptID = &otherReceipt
		require.NoError(t, txs.Create(taken))

		result, err := svc.FindMatchingTransaction(r, 7)
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestAutoMatchReceipts(t *testing.T) {
	t.Run("persists high-confidence matches and copies tax fields", func(t *testing.T) {
		svc, receipts, txs, runs := testService()
		userID := uuid.New()

		r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))

		match := debitTx(userID, mar(10), -45.00, "WOOLWORTHS METRO 1234")
		require.NoError(t, txs.Create(match))

		summary, err := svc.AutoMatchReceipts(userID)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, 1, summary.Total)

		assert.Equal(t, models.ReceiptStatusMatched, r.Status)
		require.NotNil(t, r.MatchedTransactionID)
		assert.Equal(t, match.ID, *r.MatchedTransactionID)

		assert.True(t, match.IsBusinessExpense)
		assert.Equal(t, "D5", match.TaxCategory)
		assert.InDelta(t, 45.00/11, match.GSTAmount, 1e-9)

		require.Len(t, receipts.audits, 1)
		assert.Equal(t, models.AuditActionAutoMatched, receipts.audits[0].Action)

		run, err := runs.GetRun(summary.RunID)
		require.NoError(t, err)
		assert.Equal(t, "completed", run.Status)
		assert.Equal(t, 1, run.MatchedCount)
	})

	t.Run("does not persist matches below the auto threshold", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		// Exact amount and date but zero merchant similarity: confidence
		// lands on 0.7, enough for a single lookup but not for the sweep.
		r := processedReceipt(userID, mar(10), 45.00, "Bunnings")
		require.NoError(t, receipts.Create(r))

		candidate := debitTx(userID, mar(10), -45.00, "Kmart")
		require.NoError(t, txs.Create(candidate))

		lookup, err := svc.FindMatchingTransaction(r, 7)
		require.NoError(t, err)
		require.NotNil(t, lookup)
		require.Less(t, lookup.Confidence, matching.AutoMatchThreshold)

		summary, err := svc.AutoMatchReceipts(userID)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Matched)
		assert.Equal(t, 1, summary.Total)
		assert.Equal(t, models.ReceiptStatusProcessed, r.Status)
		assert.Nil(t, r.MatchedTransactionID)
	})

	t.Run("one failing receipt does not abort the sweep", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		var failing *models.Receipt
		for i := 0; i < 10; i++ {
			r := processedReceipt(userID, mar(1+i), 45.00, "Woolworths Metro")
			require.NoError(t, receipts.Create(r))
			require.NoError(t, txs.Create(debitTx(userID, mar(1+i), -45.00, "Woolworths Metro")))
			if i == 3 {
				failing = r
			}
		}
		receipts.failAcceptFor[failing.ID] = true

		summary, err := svc.AutoMatchReceipts(userID)
		require.NoError(t, err)
		assert.Equal(t, 10, summary.Total)
		assert.Equal(t, 9, summary.Matched)
		assert.Equal(t, models.ReceiptStatusProcessed, failing.Status)
	})

	t.Run("receipt without a date is counted unmatched", func(t *testing.T) {
		svc, receipts, _, _ := testService()
		userID := uuid.New()

		r := processedReceipt(userID, time.Time{}, 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))

		summary, err := svc.AutoMatchReceipts(userID)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.Matched)
		assert.Equal(t, 1, summary.Total)
	})

	t.Run("store outage surfaces as an error", func(t *testing.T) {
		svc, receipts, _, _ := testService()
		receipts.listErr = errors.New("database unreachable")

		_, err := svc.AutoMatchReceipts(uuid.New())
		assert.Error(t, err)
	})

	t.Run("progress cache reflects a completed run", func(t *testing.T) {
		svc, receipts, txs, _ := testService()
		userID := uuid.New()

		r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
		require.NoError(t, receipts.Create(r))
		require.NoError(t, txs.Create(debitTx(userID, mar(10), -45.00, "Woolworths Metro")))

		summary, err := svc.AutoMatchReceipts(userID)
		require.NoError(t, err)

		progress, ok := svc.Progress(summary.RunID)
		require.True(t, ok)
		assert.Equal(t, "completed", progress.Status)
		assert.Equal(t, 1, progress.ProcessedCount)
	})
}

func TestManualMatch(t *testing.T) {
	svc, receipts, txs, _ := testService()
	userID := uuid.New()

	r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
	require.NoError(t, receipts.Create(r))

	tx := debitTx(userID, mar(15), -44.00, "WW METRO")
	require.NoError(t, txs.Create(tx))

	result, err := svc.ManualMatch(r.ID, tx.ID, "alex")
	require.NoError(t, err)
	assert.Equal(t, matching.MatchTypeManual, result.MatchType)
	assert.Equal(t, 1.0, result.Confidence)
	assert.Equal(t, models.ReceiptStatusMatched, r.Status)

	require.Len(t, receipts.audits, 1)
	assert.Equal(t, models.AuditActionManualMatched, receipts.audits[0].Action)
	assert.Equal(t, "alex", receipts.audits[0].PerformedBy)
}

func TestUnmatch(t *testing.T) {
	svc, receipts, txs, _ := testService()
	userID := uuid.New()

	r := processedReceipt(userID, mar(10), 45.00, "Woolworths Metro")
	require.NoError(t, receipts.Create(r))
	tx := debitTx(userID, mar(10), -45.00, "Woolworths Metro")
	require.NoError(t, txs.Create(tx))

	_, err := svc.ManualMatch(r.ID, tx.ID, "alex")
	require.NoError(t, err)

	require.NoError(t, svc.Unmatch(r.ID, "alex"))
	assert.Equal(t, models.ReceiptStatusProcessed, r.Status)
	assert.Nil(t, r.MatchedTransactionID)
}

func TestCreateTransactionDirection(t *testing.T) {
	svc, _, txs, runs := testService()
	userID := uuid.New()

	batch, err := svc.CreateImportBatch(userID, "statement.csv")
	require.NoError(t, err)

	deb, err := svc.CreateTransaction(batch.ID, userID, mar(10), -45.00, "Woolworths Metro", "")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionDebit, deb.Direction)

	cred, err := svc.CreateTransaction(batch.ID, userID, mar(11), 1200.00, "", "SALARY ACME")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionCredit, cred.Direction)

	assert.Len(t, txs.txs, 2)

	svc.CompleteImportBatch(batch.ID, 2)
	stored, err := runs.GetImportBatch(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, "completed", stored.Status)
	assert.Equal(t, 2, stored.TotalTransactions)
}
