package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const eventSource = "sku-scraper"

// RedisClient is the part of *redis.Client the relay uses.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxStore is what the relay needs from the outbox table.
type OutboxStore interface {
	Due(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkPublished(ctx context.Context, id uuid.UUID) error
	ScheduleRetry(ctx context.Context, id uuid.UUID, cause error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

// Relay forwards archived scrape events from the outbox to their Redis
// stream, where the price watch picks them up.
type Relay struct {
	redis     RedisClient
	outbox    OutboxStore
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// RelayStats is the outbox backlog reported on /health.
type RelayStats struct {
	Pending    int64 `json:"pending"`
	DeadLetter int64 `json:"dead_letter"`
}

// streamEnvelope is the JSON stored under "data" in every stream entry.
type streamEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	SKU       string          `json:"sku"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  streamMetadata  `json:"metadata"`
}

type streamMetadata struct {
	Source     string `json:"source"`
	Attempt    int    `json:"attempt"`
	TargetName string `json:"target_stream"`
}

var errBadPayload = errors.New("scrape event payload is not valid JSON")

func NewRelay(outbox OutboxStore, redisClient RedisClient, logger *slog.Logger, config RelayConfig) *Relay {
	if config.PollInterval == 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	return &Relay{
		redis:     redisClient,
		outbox:    outbox,
		logger:    logger.With("component", "relay"),
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
	}
}

// Start drains the outbox once, then every poll interval until ctx is done.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batchSize)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// drain forwards one batch of due events. A failing event is rescheduled and
// does not hold back the rest.
func (r *Relay) drain(ctx context.Context) error {
	events, err := r.outbox.Due(ctx, r.batchSize)
	if err != nil {
		return err
	}

	published := 0
	for _, event := range events {
		if err := r.forward(ctx, event); err != nil {
			r.logger.Warn("scrape event not published",
				"event_id", event.ID,
				"sku", event.AggregateID,
				"attempt", event.RetryCount+1,
				"error", err)
			continue
		}
		published++
	}

	if len(events) > 0 {
		r.logger.Debug("outbox drained", "due", len(events), "published", published)
	}
	return nil
}

func (r *Relay) forward(ctx context.Context, event *OutboxEvent) error {
	if err := r.publish(ctx, event); err != nil {
		if retryErr := r.outbox.ScheduleRetry(ctx, event.ID, err); retryErr != nil {
			return errors.Join(err, retryErr)
		}
		return err
	}
	return r.outbox.MarkPublished(ctx, event.ID)
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	if !json.Valid(event.Payload) {
		return errBadPayload
	}

	data, err := json.Marshal(streamEnvelope{
		ID:        event.ID.String(),
		Type:      event.EventType,
		SKU:       event.AggregateID,
		Timestamp: event.CreatedAt,
		Payload:   event.Payload,
		Metadata: streamMetadata{
			Source:     eventSource,
			Attempt:    event.RetryCount + 1,
			TargetName: event.TargetStream,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode stream entry: %w", err)
	}

	err = r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_type": event.EventType,
			"sku":        event.AggregateID,
			"outbox_id":  event.ID.String(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to add to %s: %w", event.TargetStream, err)
	}
	return nil
}

// Stats counts events still waiting to be published and dead letters.
func (r *Relay) Stats(ctx context.Context) (RelayStats, error) {
	pending, err := r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
	if err != nil {
		return RelayStats{}, err
	}
	dead, err := r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
	if err != nil {
		return RelayStats{}, err
	}
	return RelayStats{Pending: pending, DeadLetter: dead}, nil
}
