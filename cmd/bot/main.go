package main

import (
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/xaenox/actionbot/internal/bot"
	"github.com/xaenox/actionbot/internal/classifier"
	"github.com/xaenox/actionbot/internal/dedup"
	"github.com/xaenox/actionbot/internal/emitter"
	"github.com/xaenox/actionbot/internal/grouper"
	"github.com/xaenox/actionbot/internal/notify"
	"github.com/xaenox/actionbot/internal/storage"
	"github.com/xaenox/actionbot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		dbConfig := storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Initialize the Telegram API once, shared by the adapter and the
	// push-notification sink
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal("Failed to create Telegram API client", zap.Error(err))
	}

	// Initialize the classification gateway
	clf := classifier.NewGPTClassifier(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		cfg.Classifier.RequestTimeout(),
		logger,
	)

	// Initialize duplicate suppression
	guard := dedup.NewGuard(dedup.GuardConfig{
		SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
		SignatureCap:        cfg.Dedup.SignatureCap,
		SignatureTrim:       cfg.Dedup.SignatureTrim,
		OwnerPolicy:         dedup.OwnerPolicy(cfg.Dedup.OwnerPolicy),
	}, logger)

	topics := dedup.NewTracker(store, dedup.TrackerConfig{
		SimilarityThreshold: cfg.Topics.SimilarityThreshold,
		Timeout:             cfg.Topics.Timeout(),
		ActiveWindow:        cfg.Topics.ActiveWindow(),
		Lookback:            cfg.Topics.Lookback(),
		MaxRecords:          cfg.Topics.MaxRecords,
	}, logger)

	// Initialize the emitter with push notifications and the live event hub
	hub := notify.NewHub()
	push := notify.NewTelegramNotifier(api, logger)
	em := emitter.New(store, push, hub, logger)

	// Initialize the pipeline
	pipeline := grouper.NewPipeline(grouper.PipelineConfig{
		BatchDelay:        cfg.Grouper.BatchDelay(),
		MaxBatchSize:      cfg.Grouper.MaxBatchSize,
		SenderGap:         cfg.Grouper.SenderGap(),
		StaleBuffer:       cfg.Grouper.StaleBuffer(),
		HistoryWindow:     cfg.History.Window(),
		HistoryMaxEntries: cfg.History.MaxEntries,
		ConfidenceFloor:   cfg.Classifier.MinConfidence,
		SweepInterval:     cfg.Maintenance.Interval(),
	}, store, clf, guard, topics, em, logger)

	pipeline.Start()
	defer pipeline.Stop()

	// Start the bot
	b := bot.New(api, cfg.Telegram.OwnerID, pipeline, store, logger)
	go func() {
		if err := b.Start(); err != nil {
			logger.Fatal("Bot error", zap.Error(err))
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	b.Stop()
}
