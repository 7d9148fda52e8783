package usecase

import (
	"context"
	"sync"
	"time"

	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	drepo "SignalHub/internal/domain/repository"
	mid "SignalHub/internal/middleware"
	"SignalHub/pkg/logger"
)

// QuoteStream is a live source of price quotes.
type QuoteStream interface {
	Connect(ctx context.Context) error
	Read(ctx context.Context) (<-chan models.PriceQuote, <-chan error)
	Close() error
}

// PriceRelay forwards live exchange quotes to realtime subscribers as
// price.update events, reconnecting when the stream drops.
type PriceRelay struct {
	stream         QuoteStream
	hub            Broadcaster
	pipe           *mid.RealtimePipeline
	log            *logger.Logger
	metrics        drepo.Metrics
	reconnectDelay time.Duration

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func NewPriceRelay(stream QuoteStream, hub Broadcaster, log *logger.Logger, metrics drepo.Metrics, maxRPS int, reconnectDelay time.Duration) *PriceRelay {
	if metrics == nil {
		metrics = drepo.NopMetrics{}
	}
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	r := &PriceRelay{
		stream:         stream,
		hub:            hub,
		log:            log,
		metrics:        metrics,
		reconnectDelay: reconnectDelay,
		done:           make(chan struct{}),
	}
	r.pipe = mid.NewRealtimePipeline(mid.ProcFunc(r.publish), metrics, mid.WithMaxRPS(maxRPS))
	return r
}

// Start runs the relay in the background until Shutdown or ctx ends.
func (r *PriceRelay) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	go r.run(ctx)
}

func (r *PriceRelay) run(ctx context.Context) {
	defer close(r.done)
	for {
		if err := r.stream.Connect(ctx); err != nil {
			r.metrics.RecordError("stream_connect")
			r.log.Warn("price stream connect", logger.Error(err))
		} else {
			qCh, errCh := r.stream.Read(ctx)
			r.consume(ctx, qCh, errCh)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.reconnectDelay):
		}
	}
}

func (r *PriceRelay) consume(ctx context.Context, qCh <-chan models.PriceQuote, errCh <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errCh:
			if ok && err != nil {
				r.metrics.RecordError("stream")
				r.log.Warn("price stream dropped", logger.Error(err))
				return
			}
			errCh = nil
		case q, ok := <-qCh:
			if !ok {
				return
			}
			if _, err := r.pipe.Process(ctx, q); err != nil {
				r.log.Debug("drop quote", logger.String("symbol", q.Symbol), logger.Error(err))
			}
		}
	}
}

func (r *PriceRelay) publish(_ context.Context, q models.PriceQuote) error {
	r.hub.Publish(models.Event{
		Type:         models.EventPriceUpdate,
		Payload:      q,
		Ticker:       q.Symbol,
		RequiredTier: access.Requirement(access.FeaturePrice).String(),
		Timestamp:    q.LastUpdate,
	})
	return nil
}

// Shutdown stops the relay and closes the stream.
func (r *PriceRelay) Shutdown(ctx context.Context) error {
	var err error
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
			select {
			case <-r.done:
			case <-ctx.Done():
				err = ctx.Err()
			}
		}
		if cerr := r.stream.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
