package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/config"
	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/metrics"
	"github.com/backupwatch/backupwatch/internal/sweeper"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	database, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close()

	repo := db.NewRepository(database)
	collector := metrics.NewCollector(cfg.Mimir)
	sw := sweeper.New(repo, collector, logger)

	if *once {
		sw.Sweep()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go sw.Run(ctx, cfg.Sweeper.Interval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down sweeper...")
	cancel()
	logger.Info("Sweeper exited")
}
