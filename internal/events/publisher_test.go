package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/sku-scraper/internal/database"
	"github.com/maltedev/sku-scraper/internal/models"
)

// fakeTx runs the callback without a real transaction and records whether
// it would have committed.
type fakeTx struct {
	committed bool
}

func (f *fakeTx) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	f.committed = true
	return nil
}

type MockScrapeWriter struct {
	mock.Mock
}

func (m *MockScrapeWriter) InsertWithTx(ctx context.Context, tx pgx.Tx, p *database.ScrapedProduct) error {
	args := m.Called(ctx, tx, p)
	return args.Error(0)
}

type MockOutboxWriter struct {
	mock.Mock
}

func (m *MockOutboxWriter) InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error {
	args := m.Called(ctx, tx, event)
	return args.Error(0)
}

func newTestPublisher(tx *fakeTx, scrapes *MockScrapeWriter, outbox *MockOutboxWriter) *Publisher {
	return &Publisher{
		db:           tx,
		scrapes:      scrapes,
		outbox:       outbox,
		targetStream: database.DefaultTargetStream,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testRecord() *models.ProductRecord {
	rec := models.NewProductRecord("1001", "https://shop.example/s/1001")
	rec.Name = models.Found("Taladro")
	rec.Price = models.Found(decimal.RequireFromString("250.5"))
	return rec
}

func TestPublisher_PublishProductScraped(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	scrapes := new(MockScrapeWriter)
	outbox := new(MockOutboxWriter)
	p := newTestPublisher(tx, scrapes, outbox)
	batchID := uuid.New()

	scrapes.On("InsertWithTx", ctx, mock.Anything, mock.MatchedBy(func(row *database.ScrapedProduct) bool {
		return row.SKU == "1001" && row.BatchID == batchID && row.Stock == nil
	})).Return(nil)

	var staged *database.OutboxEvent
	outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		staged = args.Get(2).(*database.OutboxEvent)
	}).Return(nil)

	require.NoError(t, p.PublishProductScraped(ctx, batchID, testRecord()))
	assert.True(t, tx.committed)

	require.NotNil(t, staged)
	assert.Equal(t, "product", staged.AggregateType)
	assert.Equal(t, "1001", staged.AggregateID)
	assert.Equal(t, string(EventTypeProductScraped), staged.EventType)
	assert.Equal(t, database.DefaultTargetStream, staged.TargetStream)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(staged.Payload, &payload))
	assert.Equal(t, "1001", payload["sku"])
	assert.Equal(t, "Taladro", payload["name"])
	assert.Equal(t, "250.5", payload["price"])
	assert.Equal(t, batchID.String(), payload["batch_id"])
	assert.Equal(t, float64(1), payload["score"])
	assert.NotContains(t, payload, "description")
	assert.NotContains(t, payload, "stock_available")

	scrapes.AssertExpectations(t)
	outbox.AssertExpectations(t)
}

func TestPublisher_ArchiveFailureSkipsOutbox(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	scrapes := new(MockScrapeWriter)
	outbox := new(MockOutboxWriter)
	p := newTestPublisher(tx, scrapes, outbox)

	scrapes.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("unique violation"))

	err := p.Archive(ctx, uuid.New(), testRecord())

	assert.Error(t, err)
	assert.False(t, tx.committed)
	outbox.AssertNotCalled(t, "InsertWithTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestPublisher_OutboxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	tx := &fakeTx{}
	scrapes := new(MockScrapeWriter)
	outbox := new(MockOutboxWriter)
	p := newTestPublisher(tx, scrapes, outbox)

	scrapes.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(nil)
	outbox.On("InsertWithTx", ctx, mock.Anything, mock.Anything).Return(errors.New("disk full"))

	err := p.PublishProductScraped(ctx, uuid.New(), testRecord())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, tx.committed)
}

func TestNewProductScrapedPayload_StockAndMissingPrice(t *testing.T) {
	rec := models.NewProductRecord("2002", "u")
	rec.Stock = models.Found(15)

	payload := NewProductScrapedPayload(uuid.New(), rec)

	require.NotNil(t, payload.Stock)
	assert.Equal(t, 15, *payload.Stock)
	assert.Nil(t, payload.Price)
	assert.Equal(t, 0, payload.Score)
}
