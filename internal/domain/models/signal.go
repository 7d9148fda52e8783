package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Signal is a trading recommendation. ID is the external identifier supplied
// by the producer; re-ingesting the same ID replaces the stored record.
type Signal struct {
	ID        string          `json:"id" gorm:"primaryKey;size:128"`
	Ticker    string          `json:"ticker" gorm:"size:20;index:idx_signal_ticker_ts,priority:1"`
	Direction Direction       `json:"direction" gorm:"size:8"`
	Price     decimal.Decimal `json:"price" gorm:"type:decimal(30,10)"`
	Timestamp time.Time       `json:"timestamp" gorm:"index:idx_signal_ticker_ts,priority:2"`
	Timeframe string          `json:"timeframe" gorm:"size:4"`
	Source    string          `json:"source" gorm:"size:32"`
	Note      string          `json:"note,omitempty"`
	UserID    *string         `json:"userId,omitempty" gorm:"size:64"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
