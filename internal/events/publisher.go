package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/sku-scraper/internal/database"
	"github.com/maltedev/sku-scraper/internal/models"
	"github.com/maltedev/sku-scraper/internal/scoring"
)

type EventType string

const (
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"

	aggregateProduct = "product"
	source           = "scraper"
)

// ProductScrapedPayload describes one appended table row. Fields that were
// not found are omitted.
type ProductScrapedPayload struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	Timestamp   time.Time        `json:"timestamp"`
	BatchID     string           `json:"batch_id"`
	SKU         string           `json:"sku"`
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	Stock       *int             `json:"stock_available,omitempty"`
	URL         string           `json:"url"`
	ScrapedAt   time.Time        `json:"scraped_at"`
	Score       int              `json:"score"`
	Source      string           `json:"source"`
}

func NewProductScrapedPayload(batchID uuid.UUID, rec *models.ProductRecord) *ProductScrapedPayload {
	row := database.NewScrapedProduct(batchID, rec)
	payload := &ProductScrapedPayload{
		BatchID:     batchID.String(),
		SKU:         rec.SKU,
		Name:        row.Name,
		Description: row.Description,
		Stock:       row.Stock,
		URL:         rec.URL,
		ScrapedAt:   rec.ScrapedAt,
		Score:       scoring.Evaluate(*rec).Total,
	}
	if row.Price.Valid {
		price := row.Price.Decimal
		payload.Price = &price
	}
	return payload
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(pgx.Tx) error) error
}

type scrapeWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, p *database.ScrapedProduct) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher archives scraped rows and stages their events in the outbox in
// the same transaction.
type Publisher struct {
	db           txRunner
	scrapes      scrapeWriter
	outbox       outboxWriter
	targetStream string
	logger       *slog.Logger
}

func NewPublisher(db *database.DB, targetStream string, logger *slog.Logger) *Publisher {
	return &Publisher{
		db:           db,
		scrapes:      database.NewScrapeRepository(db),
		outbox:       database.NewOutboxRepository(db),
		targetStream: targetStream,
		logger:       logger.With("component", "event_publisher"),
	}
}

func (p *Publisher) PublishProductScraped(ctx context.Context, batchID uuid.UUID, rec *models.ProductRecord) error {
	payload := NewProductScrapedPayload(batchID, rec)
	payload.EventID = uuid.New().String()
	payload.EventType = string(EventTypeProductScraped)
	payload.Timestamp = time.Now()
	payload.Source = source

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	row := database.NewScrapedProduct(batchID, rec)
	outboxEvent := &database.OutboxEvent{
		AggregateType: aggregateProduct,
		AggregateID:   rec.SKU,
		EventType:     payload.EventType,
		Payload:       data,
		TargetStream:  p.targetStream,
	}

	err = p.db.WithTx(ctx, func(tx pgx.Tx) error {
		if err := p.scrapes.InsertWithTx(ctx, tx, row); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"sku", rec.SKU,
		"outbox_id", outboxEvent.ID)

	return nil
}

// Archive lets the publisher serve as the batch runner's archiver.
func (p *Publisher) Archive(ctx context.Context, batchID uuid.UUID, rec *models.ProductRecord) error {
	return p.PublishProductScraped(ctx, batchID, rec)
}
