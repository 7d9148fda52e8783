package models

import "time"

// Ticker is a tradable symbol known to the platform.
type Ticker struct {
	Symbol      string    `json:"symbol" gorm:"primaryKey;size:20"`
	Description string    `json:"description"`
	Category    string    `json:"category" gorm:"size:32;index"`
	IsEnabled   bool      `json:"isEnabled" gorm:"index"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// TickerFilter narrows ListTickers results.
type TickerFilter struct {
	Search   string
	Category string
	Enabled  *bool
	Limit    int
	Offset   int
}
