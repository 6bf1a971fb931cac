package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/txanomaly/internal/config"
	"github.com/Alias1177/txanomaly/internal/database"
	"github.com/Alias1177/txanomaly/internal/detect"
	"github.com/Alias1177/txanomaly/internal/notify"
	"github.com/Alias1177/txanomaly/internal/report"
	"github.com/Alias1177/txanomaly/models"
)

func main() {
	// Setup context with cancellation for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// 2. Configure logging
	setupLogging(cfg.LogLevel)
	printConfig(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// 3. Run detection
	run, err := detect.Run(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Detection failed")
	}

	// 4. Print report
	if cfg.OutputFormat == config.FormatJSON {
		err = report.PrintJSON(os.Stdout, run)
	} else {
		err = report.PrintTable(os.Stdout, run)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to write report")
	}

	// 5. Optional sinks; failures here do not fail the run
	if cfg.ArchiveEnabled() {
		archiveRun(ctx, cfg, run)
	}
	if cfg.NotifyEnabled() {
		sendAlert(ctx, cfg, run)
	}
}

// setupLogging configures the logger
func setupLogging(logLevel string) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log.Logger = log.Output(output)

	// Set log level from config
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log.Logger = log.Logger.Level(level)
}

// printConfig outputs the current configuration
func printConfig(cfg *config.Config) {
	log.Debug().
		Int64("Seed", cfg.Seed).
		Int("TransactionCount", cfg.TransactionCount).
		Int("OutlierCount", cfg.OutlierCount).
		Float64("AmountMean", cfg.AmountMean).
		Float64("AmountStdDev", cfg.AmountStdDev).
		Float64("OutlierMean", cfg.OutlierMean).
		Float64("OutlierStdDev", cfg.OutlierStdDev).
		Int("Estimators", cfg.Estimators).
		Float64("Contamination", cfg.Contamination).
		Int("MaxSamples", cfg.MaxSamples).
		Int64("ForestSeed", cfg.ForestSeed).
		Str("OutputFormat", cfg.OutputFormat).
		Bool("Archive", cfg.ArchiveEnabled()).
		Bool("Notify", cfg.NotifyEnabled()).
		Msg("Configuration loaded")
}

// archiveRun stores the run in PostgreSQL
func archiveRun(ctx context.Context, cfg *config.Config, run *models.Run) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return
	}
	defer db.Close()

	if err := db.SaveRun(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.RunID.String()).Msg("Failed to archive run")
		return
	}
	log.Info().Str("run_id", run.RunID.String()).Msg("Run archived")
}

// sendAlert pushes the flagged rows to Telegram
func sendAlert(ctx context.Context, cfg *config.Config, run *models.Run) {
	notifier, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, notify.Options{
		RequestTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
		MessagesPerSec: cfg.NotifyRate,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize Telegram notifier")
		return
	}

	if err := notifier.NotifyRun(ctx, run); err != nil {
		log.Error().Err(err).Msg("Failed to send alert")
	}
}
