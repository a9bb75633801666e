package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"alert-engine/internal/api"
	"alert-engine/internal/audience"
	"alert-engine/internal/config"
	"alert-engine/internal/db"
	"alert-engine/internal/dispatch"
	"alert-engine/internal/engine"
	"alert-engine/internal/logging"
	"alert-engine/internal/notifier"
	"alert-engine/internal/sampler"
	"alert-engine/internal/scheduler"
	"alert-engine/internal/tokens"
	"alert-engine/pkg/fcm"
)

func main() {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Config load failed:", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		log.Fatal("Logger init failed:", err)
	}

	// Connect to DB
	dbConn, err := db.New(cfg.DB.DSN)
	if err != nil {
		logger.Errorf("DB connect failed: %v", err)
		log.Fatal("DB connect failed:", err)
	}
	defer dbConn.Close()

	if err := dbConn.Migrate(context.Background()); err != nil {
		logger.Errorf("Migration failed: %v", err)
		log.Fatal("Migration failed:", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Station reading sampler (Kafka)
	samp := sampler.New(cfg.Kafka.Broker, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.SnapshotMaxAge(), logger)
	samp.Start(ctx, &wg)

	// Push transport and dispatcher
	transport := fcm.New(cfg.FCM.ServerKey, cfg.FCM.Endpoint, cfg.FCM.RatePerSec)
	dispatcher := dispatch.New(transport, logger)

	// Audience resolution and dedup
	resolver := audience.NewResolver(dbConn, cfg.Alert.ExtraBufferKm)
	guard := engine.NewGuard(dbConn, cfg.DedupWindow())

	// Token lifecycle with daily validation sweep
	lifecycle := tokens.NewManager(dbConn, dispatcher, logger, cfg.Sweep.BatchSize,
		time.Duration(cfg.Sweep.IntervalHours)*time.Hour, cfg.CallTimeout())
	lifecycle.Start(ctx, &wg)

	// Ops notifier and live alert feed
	opsNotifier, err := notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.OpsChatID, logger)
	if err != nil {
		logger.Errorf("Telegram init failed: %v", err)
		log.Fatal("Telegram init failed:", err)
	}
	hub := api.NewHub(logger)

	// Alert scheduler
	sched := scheduler.New(dbConn, samp, dbConn, guard, resolver, dispatcher, lifecycle, logger,
		scheduler.Options{
			Interval:       time.Duration(cfg.Alert.IntervalMinutes) * time.Minute,
			BufferRadiusKm: cfg.Alert.BufferRadiusKm,
			CallTimeout:    cfg.CallTimeout(),
			Locale:         cfg.Alert.Locale,
		},
		hub, opsNotifier,
	)
	sched.Start(ctx, &wg)

	// Start API server
	h := api.NewHandler(dbConn, dbConn, sched, lifecycle, logger)
	r := api.NewRouter(h, hub, logger, cfg)
	go func() {
		logger.Infof("API started on %s", cfg.API.Port)
		if err := r.Run(cfg.API.Port); err != nil {
			logger.Errorf("API run failed: %v", err)
		}
	}()

	// Handle graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	logger.Info("Shutting down...")
	cancel()
	if err := samp.Close(); err != nil {
		logger.Errorf("Sampler close failed: %v", err)
	}
	wg.Wait()
	logger.Info("Service stopped")
}
