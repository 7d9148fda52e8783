// Package hub keeps the registry of realtime connections and fans events out
// to the ones allowed to receive them.
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	"SignalHub/internal/domain/repository"
	"SignalHub/pkg/logger"

	"github.com/google/uuid"
)

type Option func(*Hub)

// WithSendTimeout bounds each per-connection send.
func WithSendTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

// WithQueueSize sets the capacity of the publish queue.
func WithQueueSize(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.queue = make(chan models.Event, n)
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(h *Hub) {
		if m != nil {
			h.metrics = m
		}
	}
}

// Hub owns every live connection. Events published through Publish are
// delivered by a single dispatcher in publish order.
type Hub struct {
	log         *logger.Logger
	metrics     repository.Metrics
	sendTimeout time.Duration
	queue       chan models.Event

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
}

func New(log *logger.Logger, opts ...Option) *Hub {
	h := &Hub{
		log:         log,
		metrics:     repository.NopMetrics{},
		sendTimeout: 2 * time.Second,
		queue:       make(chan models.Event, 256),
		clients:     make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a connection. It returns nil when the hub is closed.
func (h *Hub) Register(conn Conn, tier access.Tier) *Client {
	c := &Client{
		ID:   uuid.NewString(),
		Tier: tier,
		conn: conn,
		subs: make(map[string]struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.SetConnections(n)
	h.log.Debug("client registered", logger.String("client_id", c.ID), logger.String("tier", tier.String()))
	return c
}

// Unregister removes and closes a connection. It is safe to call more than
// once.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	_ = c.conn.Close()
	h.metrics.SetConnections(n)
	h.log.Debug("client unregistered", logger.String("client_id", id))
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues an event for the dispatcher without blocking. Events are
// dropped when the queue is full.
func (h *Hub) Publish(ev models.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case h.queue <- ev:
	default:
		h.metrics.RecordError("hub_queue_full")
		h.log.Warn("hub queue full, event dropped", logger.String("type", ev.Type), logger.String("ticker", ev.Ticker))
	}
}

// Run drains the publish queue until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.queue:
			h.Broadcast(ctx, ev)
		}
	}
}

// Broadcast delivers ev to every eligible connection and waits for all sends
// to finish. Connections whose send fails or times out are unregistered. It
// returns the number of successful deliveries.
func (h *Hub) Broadcast(ctx context.Context, ev models.Event) int {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		h.metrics.RecordError("hub_encode")
		h.log.Error("encode event", logger.String("type", ev.Type), logger.Error(err))
		return 0
	}

	required := access.ParseTier(ev.RequiredTier)
	targets := h.eligible(required, ev.Ticker)
	if len(targets) == 0 {
		h.metrics.RecordBroadcast(ev.Type, 0)
		return 0
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
		failed    []string
	)
	for _, c := range targets {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			if err := h.send(ctx, c, msg); err != nil {
				mu.Lock()
				failed = append(failed, c.ID)
				mu.Unlock()
				h.log.Debug("send failed", logger.String("client_id", c.ID), logger.Error(err))
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	for _, id := range failed {
		h.Unregister(id)
	}
	h.metrics.RecordBroadcast(ev.Type, delivered)
	return delivered
}

// SendTo delivers ev to a single connection regardless of tier.
func (h *Hub) SendTo(ctx context.Context, c *Client, ev models.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := h.send(ctx, c, msg); err != nil {
		h.Unregister(c.ID)
		return err
	}
	return nil
}

// Close unregisters and closes every connection. Later registrations are
// refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	h.metrics.SetConnections(0)
	h.log.Info("hub closed", logger.Int("connections", len(clients)))
	return nil
}

func (h *Hub) send(ctx context.Context, c *Client, msg []byte) error {
	sendCtx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- c.conn.WriteMessage(sendCtx, msg) }()

	select {
	case err := <-errCh:
		return err
	case <-sendCtx.Done():
		return sendCtx.Err()
	}
}

func (h *Hub) eligible(required access.Tier, ticker string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if access.Authorize(c.Tier, required) && c.Wants(ticker) {
			out = append(out, c)
		}
	}
	return out
}
