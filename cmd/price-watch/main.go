package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/sku-scraper/internal/config"
	"github.com/maltedev/sku-scraper/internal/database"
	"github.com/maltedev/sku-scraper/internal/events"
	"github.com/maltedev/sku-scraper/pkg/logger"
)

// price-watch follows the product scrape stream and logs every SKU whose
// price moved since an earlier batch.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("consumer failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("connected to redis", "addr", cfg.Redis.Addr)

	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	consumer := events.NewConsumer(rdb, database.NewScrapeRepository(db), events.ConsumerConfig{
		Stream: cfg.Archive.TargetStream,
		Group:  cfg.Archive.ConsumerGroup,
		Name:   cfg.Archive.ConsumerName,
	}, nil, log)

	return consumer.Run(ctx)
}
