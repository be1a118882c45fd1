package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

type mockPriceRepo struct {
	mu      sync.Mutex
	stocks  []*models.Stock
	prices  []*models.PriceDataDaily
	failOn  error
	written chan struct{}
}

func (m *mockPriceRepo) UpsertStock(_ context.Context, s *models.Stock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stocks = append(m.stocks, s)
	return nil
}

func (m *mockPriceRepo) CreatePriceData(_ context.Context, p *models.PriceDataDaily) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != nil {
		return m.failOn
	}
	m.prices = append(m.prices, p)
	if m.written != nil {
		select {
		case m.written <- struct{}{}:
		default:
		}
	}
	return nil
}

func (m *mockPriceRepo) Prices() []*models.PriceDataDaily {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.PriceDataDaily(nil), m.prices...)
}

type mockInvalidator struct {
	mu      sync.Mutex
	symbols []string
}

func (m *mockInvalidator) Invalidate(_ context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols = append(m.symbols, symbol)
	return nil
}

type mockReader struct {
	cfg  kafka.ReaderConfig
	msgs chan kafka.Message

	mu         sync.Mutex
	closeCalls int
}

func newMockReader(topic string, buffer int) *mockReader {
	return &mockReader{
		cfg:  kafka.ReaderConfig{Topic: topic},
		msgs: make(chan kafka.Message, buffer),
	}
}

func (r *mockReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case msg := <-r.msgs:
		return msg, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *mockReader) Close() error {
	r.mu.Lock()
	r.closeCalls++
	r.mu.Unlock()
	return nil
}

func (r *mockReader) Config() kafka.ReaderConfig {
	return r.cfg
}

func priceMessage(t *testing.T, event models.PriceEvent) kafka.Message {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return kafka.Message{Key: []byte(event.Data.Symbol), Value: payload}
}

func TestPriceConsumer_processMessage(t *testing.T) {
	ctx := context.Background()

	t.Run("stores the close and invalidates the cache", func(t *testing.T) {
		repo := &mockPriceRepo{}
		cache := &mockInvalidator{}
		consumer := &PriceConsumer{repo: repo, cache: cache, log: zerolog.Nop()}

		err := consumer.processMessage(ctx, priceMessage(t, models.PriceEvent{
			EventType: models.EventPriceUpdated,
			Source:    "market-data",
			Data: models.PriceEventData{
				Symbol: "aapl", Name: "Apple Inc.", Date: "2026-01-14",
				Open: "180.10", High: "182.00", Low: "179.50", Close: "181.25", Volume: 5000,
			},
		}))
		require.NoError(t, err)

		prices := repo.Prices()
		require.Len(t, prices, 1)
		p := prices[0]
		assert.Equal(t, "AAPL", p.Symbol)
		assert.Equal(t, time.Date(2026, 1, 14, 0, 0, 0, 0, time.UTC), p.Date)
		assert.True(t, p.Close.Equal(decimal.RequireFromString("181.25")))
		assert.True(t, p.Low.Equal(decimal.RequireFromString("179.50")))
		assert.Equal(t, int64(5000), p.Volume)

		require.Len(t, repo.stocks, 1)
		assert.Equal(t, "Apple Inc.", repo.stocks[0].Name)
		assert.Equal(t, []string{"AAPL"}, cache.symbols)
	})

	t.Run("ignores other event types", func(t *testing.T) {
		repo := &mockPriceRepo{}
		consumer := &PriceConsumer{repo: repo, log: zerolog.Nop()}

		err := consumer.processMessage(ctx, priceMessage(t, models.PriceEvent{
			EventType: "SOMETHING_ELSE",
			Data:      models.PriceEventData{Symbol: "AAPL", Close: "1"},
		}))
		require.NoError(t, err)
		assert.Empty(t, repo.Prices())
	})

	t.Run("rejects malformed events", func(t *testing.T) {
		repo := &mockPriceRepo{}
		consumer := &PriceConsumer{repo: repo, log: zerolog.Nop()}

		bad := []models.PriceEventData{
			{Close: "1", Date: "2026-01-01"},
			{Symbol: "AAPL", Close: "abc", Date: "2026-01-01"},
			{Symbol: "AAPL", Close: "-1", Date: "2026-01-01"},
			{Symbol: "AAPL", Close: "1", Date: "01/02/2026"},
			{Symbol: "AAPL", Close: "1"},
		}
		for _, data := range bad {
			err := consumer.processMessage(ctx, priceMessage(t, models.PriceEvent{
				EventType: models.EventPriceUpdated, Data: data,
			}))
			assert.Error(t, err, "%+v", data)
		}

		err := consumer.processMessage(ctx, kafka.Message{Value: []byte("not json")})
		assert.Error(t, err)
		assert.Empty(t, repo.Prices())
	})

	t.Run("falls back to the timestamp and the close", func(t *testing.T) {
		bar, err := convertEventToPriceData(models.PriceEvent{
			EventType: models.EventPriceUpdated,
			Timestamp: "2026-01-14T21:05:00-05:00",
			Data:      models.PriceEventData{Symbol: "MSFT", Close: "400"},
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), bar.Date)
		assert.True(t, bar.Open.Equal(bar.Close))
		assert.True(t, bar.High.Equal(bar.Close))
	})

	t.Run("repository errors are returned", func(t *testing.T) {
		repo := &mockPriceRepo{failOn: errors.New("db down")}
		consumer := &PriceConsumer{repo: repo, log: zerolog.Nop()}

		err := consumer.processMessage(ctx, priceMessage(t, models.PriceEvent{
			EventType: models.EventPriceUpdated,
			Data:      models.PriceEventData{Symbol: "AAPL", Close: "1", Date: "2026-01-01"},
		}))
		assert.ErrorContains(t, err, "db down")
	})
}

func TestPriceConsumer_Start_consumesAndProcessesMessages(t *testing.T) {
	repo := &mockPriceRepo{written: make(chan struct{}, 1)}
	reader := newMockReader("prices-topic", 2)
	consumer := &PriceConsumer{reader: reader, repo: repo, log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- consumer.Start(ctx)
	}()

	// a broken message is skipped without stopping the loop
	reader.msgs <- kafka.Message{Value: []byte("{")}
	reader.msgs <- priceMessage(t, models.PriceEvent{
		EventType: models.EventPriceUpdated,
		Data:      models.PriceEventData{Symbol: "GOOGL", Close: "150", Date: "2026-01-14"},
	})

	select {
	case <-repo.written:
		// processed
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for price event to be processed")
	}

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumer to shut down")
	}

	require.Len(t, repo.Prices(), 1)
	assert.Equal(t, "GOOGL", repo.Prices()[0].Symbol)
	reader.mu.Lock()
	assert.Equal(t, 1, reader.closeCalls)
	reader.mu.Unlock()
}
