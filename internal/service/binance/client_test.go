package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestKlinesParsesDecimals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" || r.URL.Query().Get("interval") != "1w" || r.URL.Query().Get("limit") != "2" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`[
			[1704067200000,"42000.10","43000.00","41000.00","42500.55","1234.5",1704671999999,"0",1,"0","0","0"],
			[1704672000000,"42500.55","44000.00","42000.00","43900.00","999",1705276799999,"0",1,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second, 100, 10)
	candles, err := c.Klines(context.Background(), "BTCUSDT", "1w", 2)
	if err != nil {
		t.Fatalf("klines: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.Open.String() != "42000.1" || first.Ticker != "BTCUSDT" || first.Interval != "1w" {
		t.Fatalf("unexpected candle %+v", first)
	}
	if !first.Bucket.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected bucket %s", first.Bucket)
	}
}

func TestKlinesRejectsMalformedRows(t *testing.T) {
	cases := map[string]string{
		"not a number": `[[1704067200000,"abc","1","1","1","1"]]`,
		"short row":    `[[1704067200000,"1","1"]]`,
		"inconsistent": `[[1704067200000,"10","9","8","9","1"]]`,
		"not an array": `{"code":-1121,"msg":"Invalid symbol."}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, time.Second, 100, 10)
			if _, err := c.Klines(context.Background(), "BTCUSDT", "1d", 1); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTicker24h(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "ETHUSDT" {
			t.Errorf("unexpected symbol %s", r.URL.Query().Get("symbol"))
		}
		_, _ = w.Write([]byte(`{"symbol":"ETHUSDT","lastPrice":"3400.50","priceChange":"-20.1","priceChangePercent":"-0.59","volume":"100000","closeTime":1704067200000}`))
	}))
	defer srv.Close()

	q, err := NewClient(srv.URL, time.Second, 100, 10).Ticker24h(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("ticker: %v", err)
	}
	if q.Price.String() != "3400.5" || q.Change24h.String() != "-20.1" || q.IsFallback {
		t.Fatalf("unexpected quote %+v", q)
	}
}

func TestTicker24hStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second, 100, 10).Ticker24h(context.Background(), "ETHUSDT"); err == nil {
		t.Fatalf("expected error on 429")
	}
}

func TestParseMiniTicker(t *testing.T) {
	q, ok := parseMiniTicker([]byte(`{"stream":"btcusdt@miniTicker","data":{"e":"24hrMiniTicker","E":1704067200000,"s":"BTCUSDT","c":"110","o":"100","h":"111","l":"99","v":"5","q":"500"}}`))
	if !ok {
		t.Fatalf("expected quote")
	}
	if q.Symbol != "BTCUSDT" || q.Change24h.String() != "10" || q.ChangePercent24h.String() != "10" {
		t.Fatalf("unexpected quote %+v", q)
	}
	if _, ok := parseMiniTicker([]byte(`{"result":null,"id":1}`)); ok {
		t.Fatalf("control frames must be ignored")
	}
}

func TestStreamURL(t *testing.T) {
	s := NewStream("wss://stream.binance.com:9443/", []string{"BTCUSDT", "ETHUSDT"}, nil)
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@miniTicker/ethusdt@miniTicker"
	if s.URL() != want {
		t.Fatalf("got %s", s.URL())
	}
}
