package database

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) Due(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*OutboxEvent), args.Error(1)
}

func (m *MockOutboxRepository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) ScheduleRetry(ctx context.Context, id uuid.UUID, cause error) error {
	args := m.Called(ctx, id, cause)
	return args.Error(0)
}
func (m *MockOutboxRepository) CountByStatus(ctx context.Context, statuses ...string) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func scrapeEvent(sku string) *OutboxEvent {
	return &OutboxEvent{
		ID:            uuid.New(),
		AggregateType: "product",
		AggregateID:   sku,
		EventType:     "PRODUCT_SCRAPED",
		Payload:       json.RawMessage(`{"sku":"` + sku + `","price":"1234.56"}`),
		TargetStream:  DefaultTargetStream,
		CreatedAt:     time.Now(),
	}
}

func streamData(t *testing.T, args *redis.XAddArgs) map[string]interface{} {
	t.Helper()
	val, ok := args.Values.(map[string]interface{})["data"].(string)
	require.True(t, ok)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(val), &data))
	return data
}

func TestRelay_Drain(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes and marks every event", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, quietLogger(), RelayConfig{BatchSize: 10})

		events := []*OutboxEvent{scrapeEvent("1001"), scrapeEvent("1002")}
		mockOutbox.On("Due", ctx, 10).Return(events, nil)

		for _, event := range events {
			mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
				return args.Stream == DefaultTargetStream &&
					args.Values.(map[string]interface{})["event_type"] == "PRODUCT_SCRAPED" &&
					args.Values.(map[string]interface{})["sku"] == event.AggregateID
			})).Return(nil)
			mockOutbox.On("MarkPublished", ctx, event.ID).Return(nil)
		}

		require.NoError(t, relay.drain(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("empty batch publishes nothing", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, quietLogger(), RelayConfig{BatchSize: 10})

		mockOutbox.On("Due", ctx, 10).Return([]*OutboxEvent{}, nil)

		require.NoError(t, relay.drain(ctx))
		mockRedis.AssertNotCalled(t, "XAdd", mock.Anything, mock.Anything)
	})

	t.Run("redis failure reschedules the event and continues", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, mockRedis, quietLogger(), RelayConfig{BatchSize: 10})

		bad, good := scrapeEvent("bad"), scrapeEvent("good")
		mockOutbox.On("Due", ctx, 10).Return([]*OutboxEvent{bad, good}, nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]interface{})["sku"] == "bad"
		})).Return(errors.New("connection refused"))
		mockOutbox.On("ScheduleRetry", ctx, bad.ID, mock.Anything).Return(nil)

		mockRedis.On("XAdd", ctx, mock.MatchedBy(func(args *redis.XAddArgs) bool {
			return args.Values.(map[string]interface{})["sku"] == "good"
		})).Return(nil)
		mockOutbox.On("MarkPublished", ctx, good.ID).Return(nil)

		require.NoError(t, relay.drain(ctx))

		mockRedis.AssertExpectations(t)
		mockOutbox.AssertExpectations(t)
	})

	t.Run("outbox query failure is returned", func(t *testing.T) {
		mockOutbox := new(MockOutboxRepository)
		relay := NewRelay(mockOutbox, new(MockRedisClient), quietLogger(), RelayConfig{BatchSize: 10})

		mockOutbox.On("Due", ctx, 10).Return(nil, errors.New("db down"))

		assert.Error(t, relay.drain(ctx))
	})
}

func TestRelay_Publish(t *testing.T) {
	ctx := context.Background()
	mockRedis := new(MockRedisClient)
	relay := NewRelay(new(MockOutboxRepository), mockRedis, quietLogger(), RelayConfig{})

	event := scrapeEvent("1001")

	var captured *redis.XAddArgs
	mockRedis.On("XAdd", ctx, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(*redis.XAddArgs)
	}).Return(nil)

	require.NoError(t, relay.publish(ctx, event))
	require.NotNil(t, captured)

	data := streamData(t, captured)
	assert.Equal(t, event.ID.String(), data["id"])
	assert.Equal(t, "PRODUCT_SCRAPED", data["type"])
	assert.Equal(t, "1001", data["sku"])

	payload, ok := data["payload"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1234.56", payload["price"])

	metadata, ok := data["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "sku-scraper", metadata["source"])
	assert.Equal(t, float64(1), metadata["attempt"])
	assert.Equal(t, event.ID.String(), captured.Values.(map[string]interface{})["outbox_id"])
}

func TestRelay_PublishRejectsBadPayload(t *testing.T) {
	relay := NewRelay(new(MockOutboxRepository), new(MockRedisClient), quietLogger(), RelayConfig{})

	event := scrapeEvent("1001")
	event.Payload = json.RawMessage(`not json`)

	assert.ErrorIs(t, relay.publish(context.Background(), event), errBadPayload)
}

func TestRelay_Stats(t *testing.T) {
	ctx := context.Background()
	mockOutbox := new(MockOutboxRepository)
	relay := NewRelay(mockOutbox, new(MockRedisClient), quietLogger(), RelayConfig{})

	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusPending, OutboxStatusFailed}).Return(int64(3), nil)
	mockOutbox.On("CountByStatus", ctx, []string{OutboxStatusDeadLetter}).Return(int64(1), nil)

	stats, err := relay.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, RelayStats{Pending: 3, DeadLetter: 1}, stats)
}

func TestRelay_Start(t *testing.T) {
	mockOutbox := new(MockOutboxRepository)
	relay := NewRelay(mockOutbox, new(MockRedisClient), quietLogger(), RelayConfig{
		PollInterval: 20 * time.Millisecond,
		BatchSize:    10,
	})

	mockOutbox.On("Due", mock.Anything, 10).Return([]*OutboxEvent{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop on context cancellation")
	}
}
