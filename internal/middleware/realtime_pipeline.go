package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
)

// Proc is the downstream a pipeline forwards accepted quotes to.
type Proc interface {
	Process(ctx context.Context, q models.PriceQuote) error
}

// ProcFunc adapts a function to Proc.
type ProcFunc func(ctx context.Context, q models.PriceQuote) error

func (f ProcFunc) Process(ctx context.Context, q models.PriceQuote) error { return f(ctx, q) }

// RealtimePipeline sits between the exchange stream and the hub.
// It validates quotes and throttles them per symbol.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	maxRPS  int
	now     func() time.Time

	mu       sync.Mutex
	lastSeen map[string]time.Time // per-symbol last accepted time
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max quotes per second per symbol. Zero disables throttling.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *RealtimePipeline) { p.now = now }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		maxRPS:   2,
		now:      time.Now,
		lastSeen: make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates and throttles q, then forwards it downstream. Throttled
// quotes are dropped silently. It reports whether q was forwarded.
func (p *RealtimePipeline) Process(ctx context.Context, q models.PriceQuote) (bool, error) {
	if err := validateQuote(q); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return false, err
	}
	if !p.allow(q.Symbol, p.now()) {
		return false, nil
	}
	if err := p.proc.Process(ctx, q); err != nil {
		p.metrics.RecordError("pipeline_process")
		return false, fmt.Errorf("pipeline downstream: %w", err)
	}
	return true, nil
}

func validateQuote(q models.PriceQuote) error {
	if q.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if q.LastUpdate.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if !q.Price.IsPositive() || q.Volume24h.IsNegative() {
		return fmt.Errorf("non-positive price or negative volume")
	}
	return nil
}

func (p *RealtimePipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.lastSeen[symbol]
	if ok && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
