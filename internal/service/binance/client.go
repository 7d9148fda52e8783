// Package binance talks to the Binance spot market data API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"SignalHub/internal/domain/models"
	xhttp "SignalHub/pkg/http"

	"github.com/shopspring/decimal"
)

// Client is the REST market data client. Every request waits on a shared
// token bucket first.
type Client struct {
	baseURL string
	http    *xhttp.Client
}

func NewClient(baseURL string, timeout time.Duration, ratePerSecond float64, burst int) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: xhttp.NewClient(
			xhttp.WithTimeout(timeout),
			xhttp.WithRateLimit(ratePerSecond, burst),
		),
	}
}

type ticker24h struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChange        string `json:"priceChange"`
	PriceChangePercent string `json:"priceChangePercent"`
	Volume             string `json:"volume"`
	CloseTime          int64  `json:"closeTime"`
}

// Ticker24h returns the rolling 24h statistics of symbol as a quote.
func (c *Client) Ticker24h(ctx context.Context, symbol string) (models.PriceQuote, error) {
	var t ticker24h
	err := c.http.GetJSON(ctx, c.baseURL+"/api/v3/ticker/24hr", url.Values{"symbol": {symbol}}, &t)
	if err != nil {
		return models.PriceQuote{}, fmt.Errorf("ticker 24h %s: %w", symbol, err)
	}

	q := models.PriceQuote{Symbol: symbol}
	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"lastPrice", t.LastPrice, &q.Price},
		{"priceChange", t.PriceChange, &q.Change24h},
		{"priceChangePercent", t.PriceChangePercent, &q.ChangePercent24h},
		{"volume", t.Volume, &q.Volume24h},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return models.PriceQuote{}, fmt.Errorf("ticker 24h %s: malformed %s %q", symbol, f.name, f.raw)
		}
		*f.dst = d
	}
	if !q.Price.IsPositive() {
		return models.PriceQuote{}, fmt.Errorf("ticker 24h %s: non-positive price %s", symbol, q.Price)
	}

	q.LastUpdate = time.Now().UTC()
	if t.CloseTime > 0 {
		q.LastUpdate = time.UnixMilli(t.CloseTime).UTC()
	}
	return q, nil
}

// Klines returns up to limit candles in ascending bucket order.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	var rows [][]json.RawMessage
	err := c.http.GetJSON(ctx, c.baseURL+"/api/v3/klines", url.Values{
		"symbol":   {symbol},
		"interval": {interval},
		"limit":    {strconv.Itoa(limit)},
	}, &rows)
	if err != nil {
		return nil, fmt.Errorf("klines %s %s: %w", symbol, interval, err)
	}

	now := time.Now().UTC()
	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s %s row %d: %w", symbol, interval, i, err)
		}
		candle.Ticker = symbol
		candle.Interval = interval
		candle.UpdatedAt = now
		out = append(out, candle)
	}
	return out, nil
}

// parseKline decodes [openTime, open, high, low, close, volume, ...].
func parseKline(row []json.RawMessage) (models.Candle, error) {
	if len(row) < 6 {
		return models.Candle{}, fmt.Errorf("expected at least 6 fields, got %d", len(row))
	}

	var openTime int64
	if err := json.Unmarshal(row[0], &openTime); err != nil {
		return models.Candle{}, fmt.Errorf("open time: %w", err)
	}

	var c models.Candle
	c.Bucket = time.UnixMilli(openTime).UTC()
	for i, dst := range []*decimal.Decimal{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		var s string
		if err := json.Unmarshal(row[i+1], &s); err != nil {
			return models.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: malformed decimal %q", i+1, s)
		}
		*dst = d
	}
	if !c.Valid() {
		return models.Candle{}, fmt.Errorf("inconsistent ohlc at %s", c.Bucket.Format(time.RFC3339))
	}
	return c, nil
}
