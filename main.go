package main

import (
	"log"
	"time"

	"travel-booking/cmd"
	"travel-booking/internal/data/ledger"
	"travel-booking/internal/data/repository"
	"travel-booking/internal/usecase"
	"travel-booking/internal/wire"
	"travel-booking/pkg/database"
	"travel-booking/pkg/gateway"
	"travel-booking/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	// Load config
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("env", config.App.Env),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	// Connect to database; an unreachable database degrades to synthetic payables
	db, err := database.InitDB(config.Database)
	switch {
	case db == nil:
		logger.Fatal("Failed to configure database", zap.Error(err))
	case err != nil:
		logger.Warn("Database unreachable at startup, continuing in degraded mode", zap.Error(err))
	default:
		logger.Info("Database connected successfully")
	}
	defer db.Close()

	// Local idempotency ledger
	paymentLedger, err := ledger.Open(config.Ledger.Path)
	if err != nil {
		logger.Fatal("Failed to open payment ledger",
			zap.String("path", config.Ledger.Path),
			zap.Error(err))
	}
	defer paymentLedger.Close()

	// Initialize all repositories
	repos := repository.NewRepository(db, logger)

	// Payment gateway
	var gw gateway.Gateway = gateway.NewStripe(gateway.StripeConfig{
		SecretKey:         config.Payment.StripeSecretKey,
		MaxNetworkRetries: config.Payment.MaxNetworkRetries,
		Timeout:           30 * time.Second,
	}, logger)
	if !config.App.IsProduction() {
		gw = gateway.NewSandbox(gw, paymentLedger, logger)
		logger.Warn("Sandbox gateway enabled, mock intents are issued when the gateway is unavailable")
	}

	deps := usecase.Dependencies{
		Gateway:  gw,
		Verifier: gateway.NewStripeWebhook(config.Payment.WebhookSecret, config.Payment.WebhookTolerance),
		Ledger:   paymentLedger,
		Notifier: usecase.NewOutboxNotifier(repos.Notification, logger),
	}

	// Wire all dependencies
	app := wire.Wiring(repos, deps, config, logger)

	// Start server
	logger.Info("Starting HTTP server", zap.String("port", config.App.Port))

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
	}
}
