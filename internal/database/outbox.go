package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// A scrape event starts pending, becomes published once it is on the stream,
// and is parked as a dead letter after MaxRetryCount failed publishes.
const (
	OutboxStatusPending    = "pending"
	OutboxStatusPublished  = "published"
	OutboxStatusFailed     = "failed"
	OutboxStatusDeadLetter = "dead_letter"

	MaxRetryCount = 5

	DefaultTargetStream = "stream:product_scrapes"
	maxBackoff          = 5 * time.Minute
)

// OutboxEvent is a scrape event waiting in outbox_event to be put on its
// Redis stream. AggregateID carries the SKU.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        string          `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	PublishedAt   *time.Time      `db:"published_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// InsertWithTx stages event in tx, next to the archived scrape it describes.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, event *OutboxEvent) error {
	if event.AggregateType == "" || event.AggregateID == "" || event.EventType == "" {
		return fmt.Errorf("outbox event requires aggregate type, sku and event type")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = OutboxStatusPending
	}
	if event.TargetStream == "" {
		event.TargetStream = DefaultTargetStream
	}

	event.CreatedAt = time.Now()
	if event.NextRetryAt == nil {
		event.NextRetryAt = &event.CreatedAt
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (
			id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, created_at, next_retry_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ID, event.AggregateType, event.AggregateID, event.EventType, event.Payload,
		event.TargetStream, event.Status, event.RetryCount, event.CreatedAt, event.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to stage scrape event for %s: %w", event.AggregateID, err)
	}
	return nil
}

// Due returns up to limit unpublished events whose retry time has come,
// oldest scrape first.
func (r *OutboxRepository) Due(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload,
			target_stream, status, retry_count, error_message,
			created_at, published_at, next_retry_at
		FROM outbox_event
		WHERE status = ANY($1) AND next_retry_at <= now()
		ORDER BY created_at
		LIMIT $2`,
		[]string{OutboxStatusPending, OutboxStatusFailed}, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due scrape events: %w", err)
	}

	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*OutboxEvent, error) {
		e := &OutboxEvent{}
		err := row.Scan(
			&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload,
			&e.TargetStream, &e.Status, &e.RetryCount, &e.ErrorMessage,
			&e.CreatedAt, &e.PublishedAt, &e.NextRetryAt,
		)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read due scrape events: %w", err)
	}
	return events, nil
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx,
		"UPDATE outbox_event SET status = $1, published_at = now() WHERE id = $2",
		OutboxStatusPublished, id)
	if err != nil {
		return fmt.Errorf("failed to mark scrape event %s published: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scrape event not found: %s", id)
	}
	return nil
}

// ScheduleRetry records a failed publish. The event is retried after
// retryDelay(attempt) or dead-lettered on attempt MaxRetryCount.
func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, cause error) error {
	var attempt int
	err := r.db.pool.QueryRow(ctx, `
		UPDATE outbox_event
		SET retry_count = retry_count + 1,
			status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			error_message = $4
		WHERE id = $5
		RETURNING retry_count`,
		MaxRetryCount, OutboxStatusDeadLetter, OutboxStatusFailed, cause.Error(), id,
	).Scan(&attempt)
	if err != nil {
		return fmt.Errorf("failed to record publish failure for %s: %w", id, err)
	}

	_, err = r.db.pool.Exec(ctx,
		"UPDATE outbox_event SET next_retry_at = $1 WHERE id = $2",
		time.Now().Add(retryDelay(attempt)), id)
	if err != nil {
		return fmt.Errorf("failed to schedule retry for %s: %w", id, err)
	}
	return nil
}

// CountByStatus returns how many events are in any of the given statuses.
func (r *OutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	var count int64
	err := r.db.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_event WHERE status = ANY($1)", statuses).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count outbox events: %w", err)
	}
	return count, nil
}

// retryDelay doubles per attempt (2s, 4s, 8s, ...) up to maxBackoff.
func retryDelay(attempt int) time.Duration {
	if attempt >= 16 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}
