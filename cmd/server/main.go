package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haszKEJL/Projekt-PAI/internal/api"
	"github.com/haszKEJL/Projekt-PAI/internal/blob"
	"github.com/haszKEJL/Projekt-PAI/internal/config"
	"github.com/haszKEJL/Projekt-PAI/internal/db"
	"github.com/haszKEJL/Projekt-PAI/internal/db/models"
	"github.com/haszKEJL/Projekt-PAI/internal/services"
	"github.com/haszKEJL/Projekt-PAI/internal/store"
	"github.com/haszKEJL/Projekt-PAI/pkg/logger"
	"github.com/haszKEJL/Projekt-PAI/pkg/metrics"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	_ = godotenv.Load()

	var cfg *config.Configuration
	var err error
	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	zapLogger, err := logger.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(cfg, zapLogger)

	database, err := db.Open(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to open database", zap.Error(err))
	}

	blobStore, err := blob.NewStore(cfg.Storage.BlobDir, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open blob store", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector()

	recordStore := store.NewRecordStore(database, blobStore, zapLogger)
	pendingStore := store.NewPendingStore(blobStore, cfg.Storage.PendingTTL, cfg.Storage.PendingSweep, zapLogger)
	defer pendingStore.Close()

	authService := services.NewAuthService(database, cfg.Security.TokenSecret, cfg.Security.TokenTTL, cfg.Security.BcryptCost, zapLogger)
	signingService := services.NewSigningService(recordStore, pendingStore, blobStore, zapLogger, metricsCollector)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedUsers(ctx, database, authService, zapLogger); err != nil {
		zapLogger.Fatal("Failed to seed users", zap.Error(err))
	}

	router := api.NewRouter(zapLogger, metricsCollector, authService, signingService, recordStore)
	router.SetupRoutes()
	defer router.Close()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started", zap.String("port", cfg.Server.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Warn("Forced shutdown", zap.Error(err))
	}

	if sqlDB, err := database.DB(); err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}

// seedUsers creates the bootstrap accounts on first run. Passwords come
// from the environment so the defaults never land in a real deployment.
func seedUsers(ctx context.Context, database *gorm.DB, auth *services.AuthService, logger *zap.Logger) error {
	var count int64
	database.WithContext(ctx).Model(&models.User{}).Count(&count)
	if count > 0 {
		logger.Info("Users already seeded, skipping")
		return nil
	}
	logger.Info("Seeding initial users")

	adminPassword := os.Getenv("ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "admin"
	}
	signerPassword := os.Getenv("SIGNER_PASSWORD")
	if signerPassword == "" {
		signerPassword = "signer"
	}

	adminHash, err := auth.HashPassword(adminPassword)
	if err != nil {
		return err
	}
	signerHash, err := auth.HashPassword(signerPassword)
	if err != nil {
		return err
	}

	users := []models.User{
		{Username: "admin", Email: "admin@localhost", PasswordHash: adminHash, Role: models.RoleAdmin, ActiveStatus: true},
		{Username: "signer", Email: "signer@localhost", PasswordHash: signerHash, Role: models.RoleUser, ActiveStatus: true},
	}
	if err := database.WithContext(ctx).Create(&users).Error; err != nil {
		return err
	}

	logger.Info("Created initial users", zap.Int("count", len(users)))
	return nil
}
