package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/maltedev/sku-scraper/internal/database"
)

// StreamClient is the part of *redis.Client the consumer uses.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// PriceHistory looks up earlier archived scrapes of a SKU, newest first.
type PriceHistory interface {
	ListBySKU(ctx context.Context, sku string, limit int) ([]*database.ScrapedProduct, error)
}

type PriceChange struct {
	SKU      string          `json:"sku"`
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
	Seen     time.Time       `json:"seen"`
}

// Delta is Current minus Previous.
func (c PriceChange) Delta() decimal.Decimal {
	return c.Current.Sub(c.Previous)
}

type ConsumerConfig struct {
	Stream   string
	Group    string
	Name     string
	Block    time.Duration
	Lookback int
}

// Consumer reads PRODUCT_SCRAPED events from the stream and reports SKUs
// whose price differs from the last archived scrape of an earlier batch.
type Consumer struct {
	redis    StreamClient
	history  PriceHistory
	cfg      ConsumerConfig
	onChange func(PriceChange)
	logger   *slog.Logger
}

func NewConsumer(client StreamClient, history PriceHistory, cfg ConsumerConfig, onChange func(PriceChange), logger *slog.Logger) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = database.DefaultTargetStream
	}
	if cfg.Group == "" {
		cfg.Group = "price-watch"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = 10
	}
	if onChange == nil {
		onChange = func(PriceChange) {}
	}

	return &Consumer{
		redis:    client,
		history:  history,
		cfg:      cfg,
		onChange: onChange,
		logger:   logger.With("component", "price_watch"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	err := c.redis.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    10,
			Block:    c.cfg.Block,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				if err := c.handle(ctx, msg); err != nil {
					c.logger.Error("failed to process message", "id", msg.ID, "error", err)
					continue
				}
				if err := c.redis.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
					c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				}
			}
		}
	}
}

type envelope struct {
	Type    string                `json:"type"`
	Payload ProductScrapedPayload `json:"payload"`
}

func (c *Consumer) handle(ctx context.Context, msg redis.XMessage) error {
	if eventType, _ := msg.Values["event_type"].(string); eventType != string(EventTypeProductScraped) {
		return nil
	}

	data, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("missing data in event")
	}

	var env envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return fmt.Errorf("failed to parse event: %w", err)
	}
	payload := env.Payload
	if payload.SKU == "" {
		return fmt.Errorf("missing sku in event")
	}
	if payload.Price == nil {
		return nil
	}

	rows, err := c.history.ListBySKU(ctx, payload.SKU, c.cfg.Lookback)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if row.BatchID.String() == payload.BatchID || !row.Price.Valid {
			continue
		}
		if !row.Price.Decimal.Equal(*payload.Price) {
			change := PriceChange{
				SKU:      payload.SKU,
				Previous: row.Price.Decimal,
				Current:  *payload.Price,
				Seen:     payload.ScrapedAt,
			}
			c.logger.Info("price changed",
				"sku", change.SKU,
				"previous", change.Previous,
				"current", change.Current,
				"delta", change.Delta())
			c.onChange(change)
		}
		return nil
	}

	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}
