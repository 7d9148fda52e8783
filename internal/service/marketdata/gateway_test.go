package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/repository"
	"SignalHub/internal/service/binance"
	"SignalHub/pkg/cache"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"

	"github.com/shopspring/decimal"
)

var testNow = time.Now().UTC()

func newGateway(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Gateway, *repository.MemoryStore, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	repo := repository.NewMemoryStore()
	base := []Option{
		WithTimeout(200 * time.Millisecond),
		WithFallback(NewFallback(1)),
		WithClock(func() time.Time { return testNow }),
	}
	g := NewGateway(binance.NewClient(srv.URL, 5*time.Second, 1000, 100), repo, logger.Nop(), append(base, opts...)...)
	return g, repo, &hits
}

func inBand(price, base decimal.Decimal, pct float64) bool {
	band := base.Mul(decimal.NewFromFloat(pct))
	return price.GreaterThanOrEqual(base.Sub(band)) && price.LessThanOrEqual(base.Add(band))
}

func TestGetPriceFallsBackOnTimeout(t *testing.T) {
	g, _, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})

	start := time.Now()
	q, err := g.GetPrice(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("gateway must not fail on upstream timeout: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond+500*time.Millisecond {
		t.Fatalf("fallback took %s", elapsed)
	}
	if !q.IsFallback {
		t.Fatalf("expected fallback quote")
	}
	if !inBand(q.Price, BasePrice("BTCUSDT"), quoteSpread) {
		t.Fatalf("price %s outside synthetic band", q.Price)
	}
}

func TestGetPriceFallsBackOnBadUpstream(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadGateway) },
		"malformed":    func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"lastPrice":"n/a"}`)) },
		"not json":     func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`<html>`)) },
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			g, _, _ := newGateway(t, h)
			q, err := g.GetPrice(context.Background(), "DOGEUSDT")
			if err != nil || !q.IsFallback {
				t.Fatalf("expected fallback, got %+v %v", q, err)
			}
			if !inBand(q.Price, decimal.NewFromInt(100), quoteSpread) {
				t.Fatalf("unknown symbol must use the default base price, got %s", q.Price)
			}
		})
	}
}

func TestGetPriceCachesRealQuotes(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()

	g, _, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"3500.12345678","priceChange":"10","priceChangePercent":"0.2","volume":"1","closeTime":0}`))
	}, WithCache(mc, time.Minute))

	for i := 0; i < 3; i++ {
		q, err := g.GetPrice(context.Background(), "ETHUSDT")
		if err != nil || q.IsFallback {
			t.Fatalf("expected real quote, got %+v %v", q, err)
		}
		if q.Price.String() != "3500.12345678" {
			t.Fatalf("decimal precision lost: %s", q.Price)
		}
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("expected one upstream call, got %d", *hits)
	}
}

func TestGetPriceRejectsBadSymbol(t *testing.T) {
	g, _, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := g.GetPrice(context.Background(), "btc")
	var verrs xhttp.ValidationErrors
	if !errors.As(err, &verrs) || verrs[0].Field != "symbol" {
		t.Fatalf("expected symbol validation error, got %v", err)
	}
	if *hits != 0 {
		t.Fatalf("validation must happen before any network call")
	}
}

func weeklyKlines(n int) string {
	last := domrepo.Interval1w.BucketStart(testNow)
	rows := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		open := last.AddDate(0, 0, -7*i)
		rows = append(rows, fmt.Sprintf(`[%d,"100.5","110","95","105","1000",%d]`, open.UnixMilli(), open.UnixMilli()+1))
	}
	return "[" + strings.Join(rows, ",") + "]"
}

func TestGetCandlesStoresUpstreamAndServesFromRepository(t *testing.T) {
	g, repo, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weeklyKlines(3)))
	})
	ctx := context.Background()

	candles, err := g.GetCandles(ctx, "BTCUSDT", domrepo.Interval1w, 3)
	if err != nil || len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d (%v)", len(candles), err)
	}
	for _, c := range candles {
		if c.IsFallback {
			t.Fatalf("upstream candles must not be marked fallback")
		}
	}
	stored, _ := repo.GetOhlcData(ctx, "BTCUSDT", "1w", domrepo.OhlcRange{})
	if len(stored) != 3 {
		t.Fatalf("expected upstream candles persisted, got %d", len(stored))
	}

	if _, err := g.GetCandles(ctx, "BTCUSDT", domrepo.Interval1w, 3); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if atomic.LoadInt32(hits) != 1 {
		t.Fatalf("fresh stored candles must be served without upstream, got %d calls", *hits)
	}
}

func TestGetCandlesServesShortHistoryFromRepository(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()

	g, _, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weeklyKlines(3)))
	}, WithCache(mc, time.Minute))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		candles, err := g.GetCandles(ctx, "NEWUSDT", domrepo.Interval1w, DefaultLimit)
		if err != nil || len(candles) != 3 {
			t.Fatalf("call %d: expected the 3 listed weeks, got %d (%v)", i, len(candles), err)
		}
		if candles[0].IsFallback {
			t.Fatalf("call %d: stored candles must not be synthetic", i)
		}
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Fatalf("complete short series must be served from storage, got %d upstream calls", n)
	}
}

func TestGetCandlesRefetchesShortSeriesWithoutHistory(t *testing.T) {
	g, _, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(weeklyKlines(3)))
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := g.GetCandles(ctx, "NEWUSDT", domrepo.Interval1w, 10); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(hits); n != 2 {
		t.Fatalf("without a cache a short series cannot be trusted as complete, got %d calls", n)
	}
}

func TestGetCandlesFallbackIsNeverPersisted(t *testing.T) {
	g, repo, _ := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	ctx := context.Background()

	candles, err := g.GetCandles(ctx, "SOLUSDT", domrepo.Interval1d, 30)
	if err != nil || len(candles) != 30 {
		t.Fatalf("expected 30 synthetic candles, got %d (%v)", len(candles), err)
	}
	for i, c := range candles {
		if !c.IsFallback || !c.Valid() {
			t.Fatalf("candle %d invalid or unmarked: %+v", i, c)
		}
		if i > 0 && !c.Bucket.After(candles[i-1].Bucket) {
			t.Fatalf("candles not ascending")
		}
	}
	if stored, _ := repo.GetOhlcData(ctx, "SOLUSDT", "1d", domrepo.OhlcRange{}); len(stored) != 0 {
		t.Fatalf("synthetic candles were persisted")
	}
}

func TestGetCandlesValidation(t *testing.T) {
	g, _, hits := newGateway(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := g.GetCandles(context.Background(), "bad", domrepo.Interval("2m"), 0)

	var verrs xhttp.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	fields := strings.Join(verrs.Fields(), ",")
	if fields != "symbol,interval,limit" {
		t.Fatalf("expected every field reported, got %s", fields)
	}
	if *hits != 0 {
		t.Fatalf("no upstream call expected")
	}
}

func TestFallbackCandleInvariants(t *testing.T) {
	intervals := []domrepo.Interval{domrepo.Interval1h, domrepo.Interval4h, domrepo.Interval1d, domrepo.Interval1w}
	for seed := int64(0); seed < 50; seed++ {
		f := NewFallback(seed)
		for _, iv := range intervals {
			for _, c := range f.Candles("XRPUSDT", iv, 200, testNow) {
				if !c.Valid() || !c.IsFallback {
					t.Fatalf("seed %d %s: invalid candle o=%s h=%s l=%s c=%s", seed, iv, c.Open, c.High, c.Low, c.Close)
				}
				if !c.Bucket.Equal(iv.BucketStart(c.Bucket)) {
					t.Fatalf("bucket %s not aligned to %s", c.Bucket, iv)
				}
			}
		}
	}
}
