package handler

import (
	"encoding/csv"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tax-receipt-backend/internal/logger"
	"tax-receipt-backend/internal/models"
	service "tax-receipt-backend/internal/services/receipts"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type ReceiptHandler struct {
	service *service.Service
}

func NewReceiptHandler(s *service.Service) *ReceiptHandler {
	return &ReceiptHandler{service: s}
}

func (h *ReceiptHandler) CreateReceipt(c *gin.Context) {
	var payload struct {
		UserID      string  `json:"user_id"`
		Date        string  `json:"date"` // "yyyy-mm-dd"
		TotalAmount float64 `json:"total_amount"`
		Merchant    string  `json:"merchant"`
		TaxCategory string  `json:"tax_category"`
		GSTAmount   float64 `json:"gst_amount"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}
	if payload.TotalAmount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total amount"})
		return
	}

	// Date may legitimately be missing when extraction failed; such
	// receipts are stored but cannot be matched until corrected.
	var receiptDate time.Time
	if payload.Date != "" {
		receiptDate, err = time.Parse("2006-01-02", payload.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date format, expected yyyy-mm-dd"})
			return
		}
	}

	gst := payload.GSTAmount
	if gst == 0 {
		gst = gstComponent(payload.TotalAmount)
	}

	receipt := &models.Receipt{
		UserID:      userID,
		ReceiptDate: receiptDate,
		TotalAmount: payload.TotalAmount,
		Merchant:    payload.Merchant,
		TaxCategory: payload.TaxCategory,
		GSTAmount:   gst,
	}
	if err := h.service.CreateReceipt(receipt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "receipt created", "receipt": receipt})
}

func (h *ReceiptHandler) ListReceipts(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	status := c.Query("status")
	cursor := c.Query("cursor")
	limit := 50

	items, nextCursor, hasMore, err := h.service.ListReceipts(userID, status, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

// MatchReceipt runs a single-receipt lookup without persisting anything.
func (h *ReceiptHandler) MatchReceipt(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}

	receipt, err := h.service.GetReceipt(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "receipt not found"})
		return
	}

	dateRangeDays := 0
	if v := c.Query("date_range_days"); v != "" {
		dateRangeDays, err = strconv.Atoi(v)
		if err != nil || dateRangeDays <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date_range_days"})
			return
		}
	}

	result, err := h.service.FindMatchingTransaction(receipt, dateRangeDays)
	if err != nil {
		if errors.Is(err, service.ErrInvalidReceiptDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"match": result})
}

func (h *ReceiptHandler) ManualMatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}

	var payload struct {
		TransactionID string `json:"transaction_id"`
		PerformedBy   string `json:"performed_by"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	txID, err := uuid.Parse(payload.TransactionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid transaction ID"})
		return
	}

	performedBy := payload.PerformedBy
	if performedBy == "" {
		performedBy = "user"
	}

	result, err := h.service.ManualMatch(id, txID, performedBy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "receipt matched", "match": result})
}

func (h *ReceiptHandler) Unmatch(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid receipt ID"})
		return
	}

	if err := h.service.Unmatch(id, "user"); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "receipt unmatched"})
}

// AutoMatch runs the bulk sweep for a user and reports the summary.
func (h *ReceiptHandler) AutoMatch(c *gin.Context) {
	var payload struct {
		UserID string `json:"user_id"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	summary, err := h.service.AutoMatchReceipts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

func (h *ReceiptHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("runId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	run, err := h.service.GetRun(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id":    run.ID,
		"matched":   run.MatchedCount,
		"unmatched": run.UnmatchedCount,
		"failed":    run.FailedCount,
		"total":     run.TotalReceipts,
		"status":    run.Status,
	})
}

func (h *ReceiptHandler) MatchStats(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	stats, err := h.service.MatchStats(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ReceiptHandler) ListTransactions(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	direction := c.Query("direction")
	cursor := c.Query("cursor")
	limit := 50

	items, nextCursor, hasMore, err := h.service.ListTransactions(userID, direction, cursor, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

// ImportTransactions handles CSV uploads of bank transactions, creates an
// import batch, and processes rows in the background.
func (h *ReceiptHandler) ImportTransactions(c *gin.Context) {
	userID, err := uuid.Parse(c.PostForm("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	batch, err := h.service.CreateImportBatch(userID, header.Filename)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	go h.processCSV(batch.ID, userID, file)

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.ID.String(),
		"status":   "processing",
	})
}

// processCSV parses rows of date,amount,merchant,description. Malformed
// rows are skipped, never fatal.
func (h *ReceiptHandler) processCSV(batchID, userID uuid.UUID, reader io.Reader) {
	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	// Skip header
	_, _ = csvReader.Read()

	count := 0

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(record) < 2 || strings.Join(record, "") == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", strings.TrimSpace(record[0]))
		if err != nil {
			continue
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil {
			continue
		}

		var merchantName, description string
		if len(record) > 2 {
			merchantName = strings.TrimSpace(record[2])
		}
		if len(record) > 3 {
			description = strings.TrimSpace(record[3])
		}

		if _, err := h.service.CreateTransaction(batchID, userID, date, amount, merchantName, description); err != nil {
			logger.Get().Warn("failed to insert imported transaction",
				zap.String("batch_id", batchID.String()),
				zap.Error(err),
			)
			continue
		}

		count++

		if count%100 == 0 {
			h.service.UpdateImportProgress(batchID, count)
		}
	}

	h.service.CompleteImportBatch(batchID, count)
}

func (h *ReceiptHandler) GetImportBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	batch, err := h.service.GetImportBatch(batchID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"processed_count": batch.ProcessedCount,
		"total":           batch.TotalTransactions,
		"status":          batch.Status,
	})
}

// gstComponent returns the GST share of a GST-inclusive amount (10% GST
// means one eleventh of the total), rounded to cents.
func gstComponent(total float64) float64 {
	return math.Round(total/11*100) / 100
}
