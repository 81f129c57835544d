package main

import (
	"time"

	"tax-receipt-backend/internal/config"
	"tax-receipt-backend/internal/logger"
	"tax-receipt-backend/internal/models"
	"tax-receipt-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env
	envLoaded := godotenv.Load() == nil

	cfg := config.Load()

	if err := logger.Init(cfg.LogLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	if !envLoaded {
		log.Info("no .env file found, relying on system env")
	}

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.Receipt{},
		&models.BankTransaction{},
		&models.AutoMatchRun{},
		&models.ImportBatch{},
		&models.MatchAuditLog{},
	); err != nil {
		log.Fatal("auto-migration failed", zap.Error(err))
	}

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, db)

	log.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := r.Run(":" + cfg.ServerPort); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
