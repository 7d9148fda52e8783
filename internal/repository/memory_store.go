package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
)

type candleKey struct {
	ticker   string
	interval string
}

// MemoryStore is the ephemeral Repository. State lives for the lifetime of
// the instance.
type MemoryStore struct {
	mu      sync.RWMutex
	tickers map[string]models.Ticker
	signals map[string]models.Signal
	candles map[candleKey]map[int64]models.Candle
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tickers: make(map[string]models.Ticker),
		signals: make(map[string]models.Signal),
		candles: make(map[candleKey]map[int64]models.Candle),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) GetEnabledTickers(_ context.Context) ([]models.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		if t.IsEnabled {
			out = append(out, t)
		}
	}
	sortTickers(out)
	return out, nil
}

func (s *MemoryStore) ListTickers(_ context.Context, f models.TickerFilter) ([]models.Ticker, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToUpper(f.Search)
	matched := make([]models.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		if search != "" && !strings.Contains(t.Symbol, search) {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		if f.Enabled != nil && t.IsEnabled != *f.Enabled {
			continue
		}
		matched = append(matched, t)
	}
	sortTickers(matched)

	total := int64(len(matched))
	return page(matched, f.Offset, f.Limit), total, nil
}

func (s *MemoryStore) GetTickerBySymbol(_ context.Context, symbol string) (*models.Ticker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickers[symbol]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) UpsertTicker(_ context.Context, t models.Ticker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if prev, ok := s.tickers[t.Symbol]; ok {
		t.CreatedAt = prev.CreatedAt
	} else {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	s.tickers[t.Symbol] = t
	return nil
}

func (s *MemoryStore) CreateSignal(_ context.Context, sig models.Signal) (models.Signal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	prev, exists := s.signals[sig.ID]
	if exists {
		sig.CreatedAt = prev.CreatedAt
	} else {
		sig.CreatedAt = now
	}
	sig.UpdatedAt = now
	s.signals[sig.ID] = sig
	return sig, !exists, nil
}

func (s *MemoryStore) GetSignalByID(_ context.Context, id string) (*models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sig, ok := s.signals[id]
	if !ok {
		return nil, domrepo.ErrNotFound
	}
	return &sig, nil
}

func (s *MemoryStore) GetSignalsByTicker(_ context.Context, ticker, timeframe string, limit int) ([]models.Signal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Signal, 0)
	for _, sig := range s.signals {
		if sig.Ticker != ticker {
			continue
		}
		if timeframe != "" && sig.Timeframe != timeframe {
			continue
		}
		out = append(out, sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) GetOhlcData(_ context.Context, ticker, interval string, r domrepo.OhlcRange) ([]models.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := s.candles[candleKey{ticker, interval}]
	out := make([]models.Candle, 0, len(buckets))
	for _, c := range buckets {
		if r.Contains(c.Bucket) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket.Before(out[j].Bucket) })
	if r.Limit > 0 && len(out) > r.Limit {
		out = out[len(out)-r.Limit:]
	}
	return out, nil
}

func (s *MemoryStore) UpsertOhlcData(_ context.Context, candles ...models.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, c := range candles {
		if c.IsFallback {
			continue
		}
		key := candleKey{c.Ticker, c.Interval}
		if s.candles[key] == nil {
			s.candles[key] = make(map[int64]models.Candle)
		}
		c.Bucket = c.Bucket.UTC()
		c.UpdatedAt = now
		s.candles[key][c.Bucket.Unix()] = c
	}
	return nil
}

func (s *MemoryStore) Health(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func sortTickers(ts []models.Ticker) {
	sort.Slice(ts, func(i, j int) bool { return ts[i].Symbol < ts[j].Symbol })
}

func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
