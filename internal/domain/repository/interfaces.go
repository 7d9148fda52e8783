package repository

import (
	"context"
	"errors"
	"time"

	"SignalHub/internal/domain/models"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("repository: not found")
	// ErrPersistence wraps storage failures so callers can tell them apart
	// from validation problems.
	ErrPersistence = errors.New("repository: persistence failure")
)

// Repository is the storage contract shared by the durable and in-memory
// stores. Implementations must be interchangeable.
type Repository interface {
	GetEnabledTickers(ctx context.Context) ([]models.Ticker, error)
	ListTickers(ctx context.Context, f models.TickerFilter) ([]models.Ticker, int64, error)
	GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error)
	UpsertTicker(ctx context.Context, t models.Ticker) error

	// CreateSignal upserts by ID and reports whether the record is new.
	CreateSignal(ctx context.Context, s models.Signal) (models.Signal, bool, error)
	GetSignalByID(ctx context.Context, id string) (*models.Signal, error)
	// GetSignalsByTicker returns newest first. An empty timeframe matches all,
	// limit 0 returns everything.
	GetSignalsByTicker(ctx context.Context, ticker, timeframe string, limit int) ([]models.Signal, error)

	// GetOhlcData returns candles whose bucket lies within r, in ascending
	// bucket order. With r.Limit set only the latest r.Limit of them are kept.
	GetOhlcData(ctx context.Context, ticker, interval string, r OhlcRange) ([]models.Candle, error)
	UpsertOhlcData(ctx context.Context, candles ...models.Candle) error

	Health(ctx context.Context) error
	Close() error
}

// OhlcRange bounds a candle lookup. Start and End are inclusive bucket
// bounds; nil leaves that side open. Limit 0 keeps every match.
type OhlcRange struct {
	Start *time.Time
	End   *time.Time
	Limit int
}

// Latest selects the newest n buckets.
func Latest(n int) OhlcRange { return OhlcRange{Limit: n} }

// Contains reports whether bucket falls inside the bounds.
func (r OhlcRange) Contains(bucket time.Time) bool {
	if r.Start != nil && bucket.Before(*r.Start) {
		return false
	}
	if r.End != nil && bucket.After(*r.End) {
		return false
	}
	return true
}

// EventPublisher mirrors realtime events to an external bus.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.Event) error
	Close() error
}

// CandleArchive keeps an append-only analytical copy of fetched candles.
type CandleArchive interface {
	StoreCandles(ctx context.Context, candles []models.Candle) error
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordSignalIngested(source, result string)
	RecordBroadcast(eventType string, delivered int)
	SetConnections(n int)
	RecordFallback(kind string)
	RecordUpstreamLatency(op string, seconds float64)
	RecordError(kind string)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) RecordSignalIngested(string, string)   {}
func (NopMetrics) RecordBroadcast(string, int)           {}
func (NopMetrics) SetConnections(int)                    {}
func (NopMetrics) RecordFallback(string)                 {}
func (NopMetrics) RecordUpstreamLatency(string, float64) {}
func (NopMetrics) RecordError(string)                    {}
