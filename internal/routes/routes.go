package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	handler "tax-receipt-backend/internal/handlers"
	"tax-receipt-backend/internal/repository"
	service "tax-receipt-backend/internal/services/receipts"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB) {
	receiptRepo := repository.NewReceiptRepository(db)
	transactionRepo := repository.NewBankTransactionRepository(db)
	runRepo := repository.NewRunRepository(db)

	receiptService := service.NewService(receiptRepo, transactionRepo, runRepo)

	receiptHandler := handler.NewReceiptHandler(receiptService)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Receipt routes
	receipts := api.Group("/receipts")
	receipts.POST("", receiptHandler.CreateReceipt)
	receipts.GET("", receiptHandler.ListReceipts)
	receipts.POST("/:id/match", receiptHandler.MatchReceipt)
	receipts.POST("/:id/manual-match", receiptHandler.ManualMatch)
	receipts.POST("/:id/unmatch", receiptHandler.Unmatch)

	// Matching routes
	match := api.Group("/matching")
	match.POST("/auto", receiptHandler.AutoMatch)
	match.GET("/runs/:runId", receiptHandler.GetRun)
	match.GET("/stats", receiptHandler.MatchStats)

	// Transaction routes
	tx := api.Group("/transactions")
	tx.GET("", receiptHandler.ListTransactions)
	tx.POST("/import", receiptHandler.ImportTransactions)
	tx.GET("/import/:batchId", receiptHandler.GetImportBatch)
}
