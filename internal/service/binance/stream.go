package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Stream reads the combined miniTicker websocket stream for a set of symbols.
type Stream struct {
	baseURL string
	symbols []string
	log     *logger.Logger

	conn *websocket.Conn
}

func NewStream(baseURL string, symbols []string, log *logger.Logger) *Stream {
	return &Stream{
		baseURL: strings.TrimRight(baseURL, "/"),
		symbols: symbols,
		log:     log,
	}
}

// URL returns the combined stream endpoint.
func (s *Stream) URL() string {
	streams := make([]string, 0, len(s.symbols))
	for _, sym := range s.symbols {
		streams = append(streams, strings.ToLower(sym)+"@miniTicker")
	}
	return s.baseURL + "/stream?streams=" + strings.Join(streams, "/")
}

// Connect establishes the WebSocket connection.
func (s *Stream) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.URL(), nil)
	if err != nil {
		return fmt.Errorf("binance stream connect: %w", err)
	}
	s.conn = conn
	s.log.Info("binance stream connected", logger.Strings("symbols", s.symbols))
	return nil
}

type miniTicker struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
	Open      string `json:"o"`
	Volume    string `json:"v"`
}

type combined struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

// Read streams quotes until the connection fails or ctx ends. The error
// channel receives at most one error and both channels are closed on exit.
func (s *Stream) Read(ctx context.Context) (<-chan models.PriceQuote, <-chan error) {
	quotes := make(chan models.PriceQuote, 256)
	errs := make(chan error, 1)

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })

	go func() {
		defer stop()
		defer close(quotes)
		defer close(errs)
		if s.conn == nil {
			errs <- fmt.Errorf("binance stream not connected")
			return
		}
		for {
			_, b, err := s.conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					errs <- fmt.Errorf("binance stream read: %w", err)
				}
				return
			}
			q, ok := parseMiniTicker(b)
			if !ok {
				continue
			}
			select {
			case quotes <- q:
			case <-ctx.Done():
				return
			default:
				// drop on backpressure
			}
		}
	}()

	return quotes, errs
}

// Close closes the WS connection.
func (s *Stream) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func parseMiniTicker(b []byte) (models.PriceQuote, bool) {
	var m combined
	if err := json.Unmarshal(b, &m); err != nil || m.Data.Symbol == "" {
		return models.PriceQuote{}, false
	}
	last, err := decimal.NewFromString(m.Data.Close)
	if err != nil || !last.IsPositive() {
		return models.PriceQuote{}, false
	}
	open, err := decimal.NewFromString(m.Data.Open)
	if err != nil {
		return models.PriceQuote{}, false
	}
	vol, _ := decimal.NewFromString(m.Data.Volume)

	q := models.PriceQuote{
		Symbol:     m.Data.Symbol,
		Price:      last,
		Change24h:  last.Sub(open),
		Volume24h:  vol,
		LastUpdate: time.UnixMilli(m.Data.EventTime).UTC(),
	}
	if open.IsPositive() {
		q.ChangePercent24h = q.Change24h.Div(open).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return q, true
}
