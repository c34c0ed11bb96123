package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"labeling-service/internal/assignment"
	"labeling-service/internal/config"
	"labeling-service/internal/dataset"
	"labeling-service/internal/handler"
	"labeling-service/internal/labels"
	"labeling-service/internal/service"
	"labeling-service/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting Labeling Service...")

	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	if cfg.Auth.AppPassword == "" || cfg.Auth.JWTSecret == "" {
		logger.Fatal("app_password and jwt_secret must be configured. Please set them in configs/config.yml or environment variables")
	}

	// Create data directory if not exists
	os.MkdirAll("./data", 0755)

	// Load the bill dataset (once per process)
	loader := dataset.NewLoader(cfg.Dataset.Path, cfg.Dataset.URL, cfg.Dataset.KeyMode, logger)
	bills, err := loader.Load()
	if err != nil {
		logger.Fatal("Failed to load dataset", zap.Error(err))
	}

	// Initialize label store
	store, err := newLabelStore(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize label store", zap.Error(err))
	}
	defer store.Close()

	// Initialize core components
	engine := assignment.NewEngine(bills, store, logger)
	sessions := session.NewManager()
	auth := service.NewAuthService(
		cfg.Auth.AppPassword,
		cfg.Auth.AdminPassword,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour,
		logger,
	)

	// Initialize HTTP handler
	apiHandler := handler.NewHandler(engine, sessions, store, auth, logger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register routes
	apiHandler.RegisterRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.Info("Server starting", zap.String("address", serverAddr))

	// Graceful shutdown
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Labeling Service is running",
		zap.String("port", cfg.Server.Port),
		zap.String("store", cfg.Database.Type),
		zap.Int("bills", bills.Len()))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// newLabelStore picks the configured backend. All three implement the same
// labels.Store interface the engine works against.
func newLabelStore(cfg *config.Config, logger *zap.Logger) (labels.Store, error) {
	switch cfg.Database.Type {
	case "postgres":
		db, err := labels.NewPostgresDB(cfg.Database.URL, logger)
		if err != nil {
			return nil, err
		}
		if err := labels.MigratePostgres(db, logger); err != nil {
			return nil, err
		}
		return labels.NewPostgresStore(db, logger), nil

	case "sheets":
		return labels.NewSheetsStore(
			context.Background(),
			cfg.Sheets.CredentialsFile,
			cfg.Sheets.SpreadsheetID,
			cfg.Sheets.SheetName,
			logger,
		)

	default:
		return labels.NewSQLiteStore(cfg.Database.Path, logger)
	}
}
