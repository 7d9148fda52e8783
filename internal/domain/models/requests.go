package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"SignalHub/pkg/util"
)

// FlexString accepts a JSON string or number and keeps its textual form.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f *FlexString) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	*f = FlexString(strings.TrimSpace(s))
	return nil
}

// RawSignal is an unvalidated signal as received from any ingestion source.
// Direction and Note have aliases used by charting webhooks. A missing ID is
// generated and a missing timestamp means now.
type RawSignal struct {
	ID         string     `json:"id" yaml:"id" validate:"max=128"`
	Ticker     string     `json:"ticker" yaml:"ticker" validate:"required,symbol"`
	Direction  string     `json:"direction" yaml:"direction" validate:"required,oneof=buy sell"`
	SignalType string     `json:"signalType,omitempty" yaml:"signalType"`
	Price      FlexString `json:"price" yaml:"price" validate:"required,positive_decimal"`
	Timestamp  FlexString `json:"timestamp" yaml:"timestamp" validate:"omitempty,instant"`
	Timeframe  string     `json:"timeframe" yaml:"timeframe" validate:"required,oneof=1H 4H 1D 1W"`
	Source     string     `json:"source" yaml:"source" default:"manual" validate:"oneof=manual webhook historical import"`
	Note       string     `json:"note,omitempty" yaml:"note" validate:"max=1000"`
	Notes      string     `json:"notes,omitempty" yaml:"notes"`
	UserID     string     `json:"userId,omitempty" yaml:"userId" validate:"max=64"`
}

// Normalize folds aliases and casing before validation.
func (r *RawSignal) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.Ticker = util.NormalizeSymbol(r.Ticker)
	if r.Direction == "" {
		r.Direction = r.SignalType
	}
	r.Direction = strings.ToLower(strings.TrimSpace(r.Direction))
	r.Timeframe = strings.ToUpper(strings.TrimSpace(r.Timeframe))
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	if r.Note == "" {
		r.Note = r.Notes
	}
	r.UserID = strings.TrimSpace(r.UserID)
}

// ImportRequest is the body of the bulk import endpoint.
type ImportRequest struct {
	Signals []RawSignal `json:"signals" yaml:"signals"`
}

// OHLCQuery is the query of the candle endpoint.
type OHLCQuery struct {
	Symbol   string `query:"symbol" validate:"required,symbol"`
	Interval string `query:"interval" default:"1w" validate:"oneof=1h 4h 1d 1w"`
	Limit    int    `query:"limit" default:"104" validate:"min=1,max=1000"`
}

func (q *OHLCQuery) Normalize() {
	q.Symbol = util.NormalizeSymbol(q.Symbol)
	q.Interval = strings.ToLower(strings.TrimSpace(q.Interval))
}

// SignalAlertsQuery is the query of the signal listing endpoint.
type SignalAlertsQuery struct {
	Ticker    string `query:"ticker" validate:"required,symbol"`
	Timeframe string `query:"timeframe" default:"1W" validate:"oneof=1H 4H 1D 1W"`
	Limit     int    `query:"limit" default:"10" validate:"min=1,max=500"`
}

func (q *SignalAlertsQuery) Normalize() {
	q.Ticker = util.NormalizeSymbol(q.Ticker)
	q.Timeframe = strings.ToUpper(strings.TrimSpace(q.Timeframe))
}

// TickerQuery is the query of the ticker listing endpoints.
type TickerQuery struct {
	Search   string `query:"search" validate:"max=20"`
	Category string `query:"category" validate:"max=32"`
	Enabled  string `query:"is_enabled" validate:"omitempty,oneof=true false"`
	Limit    int    `query:"limit" default:"50" validate:"min=1,max=500"`
	Offset   int    `query:"offset" validate:"min=0"`
}

// EnabledFilter converts the textual enabled flag.
func (q TickerQuery) EnabledFilter() *bool {
	if q.Enabled == "" {
		return nil
	}
	v, _ := strconv.ParseBool(q.Enabled)
	return &v
}
