package marketdata

import (
	"math/rand"
	"sync"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"

	"github.com/shopspring/decimal"
)

var basePrices = map[string]decimal.Decimal{
	"BTCUSDT":   decimal.RequireFromString("67543.21"),
	"ETHUSDT":   decimal.RequireFromString("3421.89"),
	"BNBUSDT":   decimal.RequireFromString("342.15"),
	"SOLUSDT":   decimal.RequireFromString("98.34"),
	"XRPUSDT":   decimal.RequireFromString("0.6234"),
	"ADAUSDT":   decimal.RequireFromString("0.4567"),
	"DOTUSDT":   decimal.RequireFromString("7.89"),
	"MATICUSDT": decimal.RequireFromString("0.8923"),
	"AVAXUSDT":  decimal.RequireFromString("35.12"),
	"ATOMUSDT":  decimal.RequireFromString("9.87"),
}

var defaultBasePrice = decimal.NewFromInt(100)

const (
	quoteSpread  = 0.025
	candleDrift  = 0.05
	candleWick   = 0.02
	pricePlaces  = 8
	volumePlaces = 2
)

// BasePrice returns the synthetic anchor price for symbol.
func BasePrice(symbol string) decimal.Decimal {
	if p, ok := basePrices[symbol]; ok {
		return p
	}
	return defaultBasePrice
}

// Fallback generates synthetic market data around fixed base prices. Output
// always satisfies the OHLC invariants and is marked IsFallback.
type Fallback struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewFallback(seed int64) *Fallback {
	return &Fallback{rnd: rand.New(rand.NewSource(seed))}
}

// uniform returns a value in [-1, 1).
func (f *Fallback) uniform() float64 {
	return f.rnd.Float64()*2 - 1
}

// Quote returns a price within ±2.5% of the base price.
func (f *Fallback) Quote(symbol string, now time.Time) models.PriceQuote {
	f.mu.Lock()
	defer f.mu.Unlock()

	base := BasePrice(symbol)
	price := base.Mul(decimal.NewFromFloat(1 + quoteSpread*f.uniform())).Round(pricePlaces)
	change := price.Sub(base).Round(pricePlaces)

	return models.PriceQuote{
		Symbol:           symbol,
		Price:            price,
		Change24h:        change,
		ChangePercent24h: change.Div(base).Mul(decimal.NewFromInt(100)).Round(4),
		Volume24h:        decimal.NewFromFloat(1e5 + f.rnd.Float64()*9e5).Round(volumePlaces),
		LastUpdate:       now.UTC(),
		IsFallback:       true,
	}
}

// Candles returns limit consecutive buckets ending with the bucket that
// contains now, in ascending order.
func (f *Fallback) Candles(symbol string, interval domrepo.Interval, limit int, now time.Time) []models.Candle {
	f.mu.Lock()
	defer f.mu.Unlock()

	width := interval.Duration()
	last := interval.BucketStart(now)
	first := last.Add(-time.Duration(limit-1) * width)

	out := make([]models.Candle, 0, limit)
	open := BasePrice(symbol)
	for i := 0; i < limit; i++ {
		closePrice := open.Mul(decimal.NewFromFloat(1 + candleDrift*f.uniform())).Round(pricePlaces)
		if !closePrice.IsPositive() {
			closePrice = open
		}
		top := decimal.Max(open, closePrice)
		bottom := decimal.Min(open, closePrice)
		// Wicks are rounded down separately so rounding never crosses the body.
		up := top.Mul(decimal.NewFromFloat(candleWick * f.rnd.Float64())).RoundFloor(pricePlaces)
		down := bottom.Mul(decimal.NewFromFloat(candleWick * f.rnd.Float64())).RoundFloor(pricePlaces)

		out = append(out, models.Candle{
			Ticker:     symbol,
			Interval:   string(interval),
			Bucket:     first.Add(time.Duration(i) * width),
			Open:       open,
			High:       top.Add(up),
			Low:        bottom.Sub(down),
			Close:      closePrice,
			Volume:     decimal.NewFromFloat(1e3 + f.rnd.Float64()*1e5).Round(volumePlaces),
			UpdatedAt:  now.UTC(),
			IsFallback: true,
		})
		open = closePrice
	}
	return out
}
