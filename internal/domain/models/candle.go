package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bucket. IsFallback marks synthetic data; such candles
// are never persisted.
type Candle struct {
	ID         uint            `json:"-" gorm:"primaryKey;autoIncrement"`
	Ticker     string          `json:"ticker" gorm:"size:20;uniqueIndex:idx_ohlc_key,priority:1"`
	Interval   string          `json:"interval" gorm:"size:4;uniqueIndex:idx_ohlc_key,priority:2"`
	Bucket     time.Time       `json:"bucket" gorm:"uniqueIndex:idx_ohlc_key,priority:3"`
	Open       decimal.Decimal `json:"open" gorm:"type:decimal(30,10)"`
	High       decimal.Decimal `json:"high" gorm:"type:decimal(30,10)"`
	Low        decimal.Decimal `json:"low" gorm:"type:decimal(30,10)"`
	Close      decimal.Decimal `json:"close" gorm:"type:decimal(30,10)"`
	Volume     decimal.Decimal `json:"volume" gorm:"type:decimal(30,10)"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	IsFallback bool            `json:"isFallback" gorm:"-"`
}

func (Candle) TableName() string { return "ohlc_data" }

// Valid reports whether the OHLC values are internally consistent.
func (c Candle) Valid() bool {
	if c.Low.IsNegative() || c.Volume.IsNegative() {
		return false
	}
	maxOC := decimal.Max(c.Open, c.Close)
	minOC := decimal.Min(c.Open, c.Close)
	return c.High.GreaterThanOrEqual(maxOC) && c.Low.LessThanOrEqual(minOC)
}

// PriceQuote is the current price of a symbol.
type PriceQuote struct {
	Symbol           string          `json:"symbol"`
	Price            decimal.Decimal `json:"price"`
	Change24h        decimal.Decimal `json:"change24h"`
	ChangePercent24h decimal.Decimal `json:"changePercent24h"`
	Volume24h        decimal.Decimal `json:"volume24h"`
	LastUpdate       time.Time       `json:"lastUpdate"`
	IsFallback       bool            `json:"isFallback"`
}
