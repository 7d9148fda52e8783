package hub

import (
	"context"
	"sync"

	"SignalHub/internal/access"
)

// Conn is the transport behind one realtime client. WriteMessage must honour
// the context deadline.
type Conn interface {
	WriteMessage(ctx context.Context, msg []byte) error
	Close() error
}

// Client is a registered connection with its tier and ticker subscriptions.
type Client struct {
	ID   string
	Tier access.Tier

	conn Conn
	mu   sync.RWMutex
	subs map[string]struct{}
}

// Subscribe adds tickers to the client's filter.
func (c *Client) Subscribe(tickers ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickers {
		c.subs[t] = struct{}{}
	}
}

// Unsubscribe removes tickers from the client's filter.
func (c *Client) Unsubscribe(tickers ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tickers {
		delete(c.subs, t)
	}
}

// Subscriptions returns the subscribed tickers.
func (c *Client) Subscriptions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for t := range c.subs {
		out = append(out, t)
	}
	return out
}

// Wants reports whether an event for ticker passes the subscription filter.
// A client without subscriptions receives every ticker.
func (c *Client) Wants(ticker string) bool {
	if ticker == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	_, ok := c.subs[ticker]
	return ok
}
