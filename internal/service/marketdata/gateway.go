// Package marketdata serves prices and candles from the exchange and degrades
// to synthetic data when the exchange is unavailable.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/cache"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"
)

const (
	DefaultInterval = domrepo.Interval1w
	DefaultLimit    = 104
	MaxLimit        = 1000

	historyTTL = 7 * 24 * time.Hour
)

// Upstream is the exchange API the gateway reads from.
type Upstream interface {
	Ticker24h(ctx context.Context, symbol string) (models.PriceQuote, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
}

// UpstreamUnavailable describes a failed exchange call. It is logged and
// answered with fallback data, never returned to callers.
type UpstreamUnavailable struct {
	Op  string
	Err error
}

func (e *UpstreamUnavailable) Error() string {
	return fmt.Sprintf("upstream %s unavailable: %v", e.Op, e.Err)
}

func (e *UpstreamUnavailable) Unwrap() error { return e.Err }

type Option func(*Gateway)

// WithTimeout bounds each upstream call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithCache caches real quotes for quoteTTL. The same cache remembers where
// short candle histories begin.
func WithCache(c cache.Service, quoteTTL time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		g.quoteTTL = quoteTTL
	}
}

// WithArchive copies fresh upstream candles to an analytical store.
func WithArchive(a domrepo.CandleArchive) Option {
	return func(g *Gateway) { g.archive = a }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(g *Gateway) {
		if m != nil {
			g.metrics = m
		}
	}
}

func WithFallback(f *Fallback) Option {
	return func(g *Gateway) { g.fallback = f }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

type Gateway struct {
	upstream Upstream
	repo     domrepo.Repository
	log      *logger.Logger
	metrics  domrepo.Metrics
	cache    cache.Service
	archive  domrepo.CandleArchive
	fallback *Fallback
	timeout  time.Duration
	quoteTTL time.Duration
	now      func() time.Time
}

func NewGateway(upstream Upstream, repo domrepo.Repository, log *logger.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		upstream: upstream,
		repo:     repo,
		log:      log,
		metrics:  domrepo.NopMetrics{},
		timeout:  5 * time.Second,
		quoteTTL: 5 * time.Second,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.fallback == nil {
		g.fallback = NewFallback(time.Now().UnixNano())
	}
	return g
}

// GetPrice returns the current quote for symbol. Only malformed input is an
// error; upstream failures yield a fallback quote.
func (g *Gateway) GetPrice(ctx context.Context, symbol string) (models.PriceQuote, error) {
	if !xhttp.IsSymbol(symbol) {
		return models.PriceQuote{}, invalid("symbol", symbol, "symbol must match ^[A-Z0-9]{5,20}$")
	}

	key := cache.GenerateKey("quote", symbol)
	if g.cache != nil {
		var q models.PriceQuote
		if err := g.cache.Get(ctx, key, &q); err == nil {
			return q, nil
		}
	}

	q, err := g.fetchQuote(ctx, symbol)
	if err != nil {
		g.degraded("quote", symbol, err)
		return g.fallback.Quote(symbol, g.now()), nil
	}

	if g.cache != nil && g.quoteTTL > 0 {
		if err := g.cache.Set(ctx, key, q, g.quoteTTL); err != nil {
			g.log.Debug("cache quote", logger.String("symbol", symbol), logger.Error(err))
		}
	}
	return q, nil
}

// GetCandles returns up to limit candles in ascending order. Stored candles
// are served while fresh and complete; otherwise the exchange is asked and the
// result is stored. With the exchange down, stored candles are served when
// present and synthetic ones otherwise.
func (g *Gateway) GetCandles(ctx context.Context, symbol string, interval domrepo.Interval, limit int) ([]models.Candle, error) {
	if verrs := validateCandleQuery(symbol, interval, limit); len(verrs) > 0 {
		return nil, verrs
	}

	now := g.now()
	since := interval.BucketStart(now).Add(-time.Duration(limit-1) * interval.Duration())
	stored, err := g.repo.GetOhlcData(ctx, symbol, string(interval), domrepo.OhlcRange{Start: &since, Limit: limit})
	if err != nil {
		g.log.Warn("read stored candles", logger.String("symbol", symbol), logger.Error(err))
		stored = nil
	}
	if g.complete(ctx, symbol, interval, stored, limit) && !g.stale(stored, interval, now) {
		return stored, nil
	}

	fresh, err := g.fetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		if len(stored) > 0 {
			g.log.Warn("serving stored candles, upstream unavailable",
				logger.String("symbol", symbol), logger.String("interval", string(interval)), logger.Error(err))
			return stored, nil
		}
		g.degraded("candles", symbol, err)
		return g.fallback.Candles(symbol, interval, limit, now), nil
	}

	g.persist(ctx, symbol, interval, limit, fresh)
	if len(fresh) > limit {
		fresh = fresh[len(fresh)-limit:]
	}
	return fresh, nil
}

// Refresh fetches candles from the exchange and stores them when the stored
// series is stale. It reports whether stored data was stale before the call.
func (g *Gateway) Refresh(ctx context.Context, symbol string, interval domrepo.Interval, limit int) (bool, error) {
	stored, err := g.repo.GetOhlcData(ctx, symbol, string(interval), domrepo.Latest(1))
	if err != nil {
		return false, err
	}
	if len(stored) > 0 && !g.stale(stored, interval, g.now()) {
		return false, nil
	}
	fresh, err := g.fetchCandles(ctx, symbol, interval, limit)
	if err != nil {
		return true, err
	}
	g.persist(ctx, symbol, interval, limit, fresh)
	return true, nil
}

// complete reports whether stored holds every bucket a request for limit
// candles can get: either limit of them, or all buckets since the first one
// the exchange has for a young listing.
func (g *Gateway) complete(ctx context.Context, symbol string, interval domrepo.Interval, stored []models.Candle, limit int) bool {
	if len(stored) == 0 {
		return false
	}
	if len(stored) >= limit {
		return true
	}
	if g.cache == nil {
		return false
	}
	var first time.Time
	if err := g.cache.Get(ctx, historyKey(symbol, interval), &first); err != nil {
		return false
	}
	return !stored[0].Bucket.After(first)
}

// noteHistory remembers the first bucket of a series when the exchange
// returned fewer candles than asked for, so the stored copy counts as complete.
func (g *Gateway) noteHistory(ctx context.Context, symbol string, interval domrepo.Interval, limit int, fresh []models.Candle) {
	if g.cache == nil || len(fresh) == 0 || len(fresh) >= limit {
		return
	}
	if err := g.cache.Set(ctx, historyKey(symbol, interval), fresh[0].Bucket.UTC(), historyTTL); err != nil {
		g.log.Debug("cache history start", logger.String("symbol", symbol), logger.Error(err))
	}
}

func historyKey(symbol string, interval domrepo.Interval) string {
	return cache.GenerateKey("history", symbol, interval)
}

func (g *Gateway) stale(candles []models.Candle, interval domrepo.Interval, now time.Time) bool {
	last := candles[len(candles)-1]
	return interval.IsStale(last.Bucket, last.UpdatedAt, now)
}

func (g *Gateway) fetchQuote(ctx context.Context, symbol string) (models.PriceQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	q, err := g.upstream.Ticker24h(ctx, symbol)
	g.metrics.RecordUpstreamLatency("ticker24h", time.Since(start).Seconds())
	if err != nil {
		return models.PriceQuote{}, &UpstreamUnavailable{Op: "ticker24h", Err: err}
	}
	q.IsFallback = false
	return q, nil
}

func (g *Gateway) fetchCandles(ctx context.Context, symbol string, interval domrepo.Interval, limit int) ([]models.Candle, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	candles, err := g.upstream.Klines(ctx, symbol, string(interval), limit)
	g.metrics.RecordUpstreamLatency("klines", time.Since(start).Seconds())
	if err != nil {
		return nil, &UpstreamUnavailable{Op: "klines", Err: err}
	}
	for _, c := range candles {
		if !c.Valid() {
			return nil, &UpstreamUnavailable{Op: "klines", Err: errors.New("inconsistent ohlc in payload")}
		}
	}
	return candles, nil
}

// persist stores fresh candles. Failures are logged only.
func (g *Gateway) persist(ctx context.Context, symbol string, interval domrepo.Interval, limit int, candles []models.Candle) {
	g.noteHistory(ctx, symbol, interval, limit, candles)
	if err := g.repo.UpsertOhlcData(ctx, candles...); err != nil {
		g.metrics.RecordError("candle_persist")
		g.log.Error("store candles", logger.String("symbol", symbol), logger.Error(err))
	}
	if g.archive != nil {
		if err := g.archive.StoreCandles(ctx, candles); err != nil {
			g.metrics.RecordError("candle_archive")
			g.log.Warn("archive candles", logger.String("symbol", symbol), logger.Error(err))
		}
	}
}

func (g *Gateway) degraded(kind, symbol string, err error) {
	g.metrics.RecordFallback(kind)
	g.log.Warn("market data fallback",
		logger.String("kind", kind),
		logger.String("symbol", symbol),
		logger.Error(err),
	)
}

func validateCandleQuery(symbol string, interval domrepo.Interval, limit int) xhttp.ValidationErrors {
	var verrs xhttp.ValidationErrors
	if !xhttp.IsSymbol(symbol) {
		verrs = append(verrs, invalid("symbol", symbol, "symbol must match ^[A-Z0-9]{5,20}$")...)
	}
	if !domrepo.IsValidInterval(interval) {
		verrs = append(verrs, invalid("interval", string(interval), "interval must be one of 1h 4h 1d 1w")...)
	}
	if limit < 1 || limit > MaxLimit {
		verrs = append(verrs, invalid("limit", limit, fmt.Sprintf("limit must be between 1 and %d", MaxLimit))...)
	}
	return verrs
}

func invalid(field string, value interface{}, msg string) xhttp.ValidationErrors {
	return xhttp.ValidationErrors{{
		Code:    "ERR_INVALID",
		Field:   field,
		Message: msg,
		Params:  map[string]interface{}{"value": value},
	}}
}
