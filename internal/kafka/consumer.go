package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/trogers1052/portfolio-ledger/internal/models"
)

// messageReader is the part of *kafka.Reader the consumer uses
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
	Config() kafka.ReaderConfig
}

// PriceRepository stores closes and catalog entries
type PriceRepository interface {
	UpsertStock(ctx context.Context, s *models.Stock) error
	CreatePriceData(ctx context.Context, p *models.PriceDataDaily) error
}

// QuoteInvalidator drops cached quotes after a new close is stored
type QuoteInvalidator interface {
	Invalidate(ctx context.Context, symbol string) error
}

// PriceConsumer turns PRICE_UPDATED events into daily closes and catalog
// entries, which the ledger uses as quotes and tradable symbols.
type PriceConsumer struct {
	reader messageReader
	repo   PriceRepository
	cache  QuoteInvalidator
	log    zerolog.Logger
}

// NewPriceConsumer creates a consumer for market data events. cache may be nil.
func NewPriceConsumer(brokers []string, topic, groupID string, repo PriceRepository, cache QuoteInvalidator, log zerolog.Logger) *PriceConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: time.Second,
	})

	return &PriceConsumer{
		reader: reader,
		repo:   repo,
		cache:  cache,
		log:    log.With().Str("component", "price_consumer").Logger(),
	}
}

// Start consumes messages until ctx is cancelled
func (c *PriceConsumer) Start(ctx context.Context) error {
	c.log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting price consumer")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("Price consumer shutting down")
			return c.reader.Close()
		default:
			msg, err := c.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return c.reader.Close()
				}
				c.log.Error().Err(err).Msg("Error reading message")
				continue
			}

			if err := c.processMessage(ctx, msg); err != nil {
				// a bad message must not stall the partition
				c.log.Error().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).
					Msg("Error processing message")
			}
		}
	}
}

func (c *PriceConsumer) processMessage(ctx context.Context, msg kafka.Message) error {
	var event models.PriceEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal price event: %w", err)
	}

	if event.EventType != models.EventPriceUpdated {
		c.log.Debug().Str("event_type", event.EventType).Msg("Ignoring event")
		return nil
	}

	bar, err := convertEventToPriceData(event)
	if err != nil {
		return fmt.Errorf("failed to convert price event: %w", err)
	}

	if err := c.repo.UpsertStock(ctx, &models.Stock{Symbol: bar.Symbol, Name: event.Data.Name}); err != nil {
		return fmt.Errorf("failed to save stock: %w", err)
	}
	if err := c.repo.CreatePriceData(ctx, bar); err != nil {
		return fmt.Errorf("failed to save price data: %w", err)
	}
	if c.cache != nil {
		if err := c.cache.Invalidate(ctx, bar.Symbol); err != nil {
			c.log.Warn().Err(err).Str("symbol", bar.Symbol).Msg("Failed to invalidate cached quote")
		}
	}

	c.log.Debug().Str("symbol", bar.Symbol).Str("close", bar.Close.String()).
		Time("date", bar.Date).Msg("Stored daily close")
	return nil
}

// convertEventToPriceData validates an event and maps it to a daily bar.
// Open, high and low default to the close when absent.
func convertEventToPriceData(event models.PriceEvent) (*models.PriceDataDaily, error) {
	data := event.Data

	symbol := strings.ToUpper(strings.TrimSpace(data.Symbol))
	if symbol == "" {
		return nil, fmt.Errorf("missing symbol")
	}

	closePrice, err := decimal.NewFromString(data.Close)
	if err != nil {
		return nil, fmt.Errorf("invalid close %q: %w", data.Close, err)
	}
	if !closePrice.IsPositive() {
		return nil, fmt.Errorf("close must be positive, got %s", data.Close)
	}

	parse := func(s string) decimal.Decimal {
		if v, err := decimal.NewFromString(s); err == nil && v.IsPositive() {
			return v
		}
		return closePrice
	}

	date, err := parseEventDate(data.Date, event.Timestamp)
	if err != nil {
		return nil, err
	}

	return &models.PriceDataDaily{
		Symbol: symbol,
		Date:   date,
		Open:   parse(data.Open),
		High:   parse(data.High),
		Low:    parse(data.Low),
		Close:  closePrice,
		Volume: data.Volume,
	}, nil
}

func parseEventDate(date, timestamp string) (time.Time, error) {
	if date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
		}
		return d, nil
	}
	if timestamp != "" {
		ts, err := time.Parse(time.RFC3339, timestamp)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", timestamp, err)
		}
		y, m, d := ts.UTC().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("missing date")
}

// Close closes the Kafka consumer
func (c *PriceConsumer) Close() error {
	return c.reader.Close()
}
