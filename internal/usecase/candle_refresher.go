package usecase

import (
	"context"
	"fmt"
	"time"

	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/cache"
	"SignalHub/pkg/logger"

	"github.com/go-co-op/gocron"
)

// CandleSource refreshes stored candles for one symbol and interval.
type CandleSource interface {
	Refresh(ctx context.Context, symbol string, interval domrepo.Interval, limit int) (bool, error)
}

// CandleRefresher periodically refreshes stale candles of every enabled
// ticker. A per-key lock keeps concurrent instances from refreshing the same
// series twice.
type CandleRefresher struct {
	source    CandleSource
	repo      domrepo.Repository
	locks     cache.Service
	log       *logger.Logger
	metrics   domrepo.Metrics
	intervals []domrepo.Interval
	limit     int
	every     time.Duration
	lockTTL   time.Duration

	cron *gocron.Scheduler
}

func NewCandleRefresher(source CandleSource, repo domrepo.Repository, locks cache.Service, log *logger.Logger, metrics domrepo.Metrics, intervals []string, limit int, every time.Duration) (*CandleRefresher, error) {
	ivs := make([]domrepo.Interval, 0, len(intervals))
	for _, s := range intervals {
		iv := domrepo.Interval(s)
		if !domrepo.IsValidInterval(iv) {
			return nil, fmt.Errorf("unknown refresh interval %q", s)
		}
		ivs = append(ivs, iv)
	}
	if every <= 0 {
		return nil, fmt.Errorf("refresh period must be positive")
	}
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &CandleRefresher{
		source:    source,
		repo:      repo,
		locks:     locks,
		log:       log,
		metrics:   metrics,
		intervals: ivs,
		limit:     limit,
		every:     every,
		lockTTL:   every,
		cron:      gocron.NewScheduler(time.UTC),
	}, nil
}

// Start schedules RunOnce every period, first run immediately. The jobs use
// ctx and stop scheduling once Stop is called.
func (r *CandleRefresher) Start(ctx context.Context) error {
	r.cron.SingletonModeAll()
	if _, err := r.cron.Every(r.every).Do(func() { r.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule candle refresh: %w", err)
	}
	r.cron.StartAsync()
	r.log.Info("candle refresher started",
		logger.Duration("every_ms", r.every),
		logger.Int("intervals", len(r.intervals)),
	)
	return nil
}

func (r *CandleRefresher) Stop() {
	r.cron.Stop()
	r.log.Info("candle refresher stopped")
}

// RunOnce refreshes every enabled ticker and interval and returns the number
// of series fetched from upstream.
func (r *CandleRefresher) RunOnce(ctx context.Context) int {
	tickers, err := r.repo.GetEnabledTickers(ctx)
	if err != nil {
		r.metrics.RecordError("refresh_tickers")
		r.log.Error("load enabled tickers", logger.Error(err))
		return 0
	}

	refreshed := 0
	for _, t := range tickers {
		for _, iv := range r.intervals {
			if ctx.Err() != nil {
				return refreshed
			}
			if r.refreshOne(ctx, t.Symbol, iv) {
				refreshed++
			}
		}
	}
	r.log.Debug("candle refresh pass done", logger.Int("refreshed", refreshed), logger.Int("tickers", len(tickers)))
	return refreshed
}

func (r *CandleRefresher) refreshOne(ctx context.Context, symbol string, iv domrepo.Interval) bool {
	key := "refresh:" + symbol + ":" + string(iv)
	if r.locks != nil {
		ok, err := r.locks.TryLock(ctx, key, r.lockTTL)
		if err != nil {
			r.log.Warn("refresh lock", logger.String("key", key), logger.Error(err))
			return false
		}
		if !ok {
			return false
		}
		defer func() { _ = r.locks.Unlock(context.WithoutCancel(ctx), key) }()
	}

	fetched, err := r.source.Refresh(ctx, symbol, iv, r.limit)
	if err != nil {
		r.metrics.RecordError("refresh_candles")
		r.log.Warn("refresh candles",
			logger.String("symbol", symbol),
			logger.String("interval", string(iv)),
			logger.Error(err),
		)
		return false
	}
	return fetched
}
