package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	"SignalHub/pkg/logger"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	fail   bool
	block  bool
	closed bool
}

func (f *fakeConn) WriteMessage(ctx context.Context, msg []byte) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail || f.closed {
		return errors.New("connection closed")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.msgs))
	for _, m := range f.msgs {
		var v map[string]interface{}
		_ = json.Unmarshal(m, &v)
		out = append(out, v)
	}
	return out
}

func signalEvent(ticker string) models.Event {
	return models.Event{
		Type:         models.EventSignalCreated,
		Payload:      map[string]string{"ticker": ticker},
		Ticker:       ticker,
		RequiredTier: "basic",
	}
}

func TestBroadcastUnregistersFailedConnection(t *testing.T) {
	h := New(logger.Nop())
	open := make([]*fakeConn, 3)
	for i := range open {
		open[i] = &fakeConn{}
		h.Register(open[i], access.Basic)
	}
	broken := &fakeConn{fail: true}
	h.Register(broken, access.Pro)

	delivered := h.Broadcast(context.Background(), signalEvent("BTCUSDT"))
	if delivered != 3 {
		t.Fatalf("expected 3 deliveries, got %d", delivered)
	}
	for i, c := range open {
		if len(c.received()) != 1 {
			t.Fatalf("client %d received %d messages", i, len(c.received()))
		}
	}
	if h.Count() != 3 {
		t.Fatalf("expected broken client removed, registry has %d", h.Count())
	}
	if !broken.closed {
		t.Fatalf("expected broken client closed")
	}
}

func TestBroadcastFiltersByTier(t *testing.T) {
	h := New(logger.Nop())
	free := &fakeConn{}
	basic := &fakeConn{}
	pro := &fakeConn{}
	h.Register(free, access.Free)
	h.Register(basic, access.Basic)
	h.Register(pro, access.Pro)

	h.Broadcast(context.Background(), signalEvent("ETHUSDT"))

	if len(free.received()) != 0 {
		t.Fatalf("free client must not receive basic events")
	}
	if len(basic.received()) != 1 || len(pro.received()) != 1 {
		t.Fatalf("basic and pro clients must receive the event")
	}

	h.Broadcast(context.Background(), models.Event{Type: models.EventPriceUpdate, Ticker: "ETHUSDT", RequiredTier: "free"})
	if len(free.received()) != 1 {
		t.Fatalf("free client must receive price updates")
	}
}

func TestBroadcastFiltersBySubscription(t *testing.T) {
	h := New(logger.Nop())
	btcOnly := &fakeConn{}
	all := &fakeConn{}
	c := h.Register(btcOnly, access.Pro)
	c.Subscribe("BTCUSDT")
	h.Register(all, access.Pro)

	h.Broadcast(context.Background(), signalEvent("ETHUSDT"))
	h.Broadcast(context.Background(), signalEvent("BTCUSDT"))

	if got := len(btcOnly.received()); got != 1 {
		t.Fatalf("subscribed client expected 1 message, got %d", got)
	}
	if got := len(all.received()); got != 2 {
		t.Fatalf("unfiltered client expected 2 messages, got %d", got)
	}
}

func TestBroadcastSendTimeout(t *testing.T) {
	h := New(logger.Nop(), WithSendTimeout(20*time.Millisecond))
	slow := &fakeConn{block: true}
	fast := &fakeConn{}
	h.Register(slow, access.Pro)
	h.Register(fast, access.Pro)

	start := time.Now()
	h.Broadcast(context.Background(), signalEvent("BTCUSDT"))
	if time.Since(start) > time.Second {
		t.Fatalf("broadcast did not respect send timeout")
	}
	if h.Count() != 1 || len(fast.received()) != 1 {
		t.Fatalf("expected slow client dropped and fast client served")
	}
}

func TestPublishPreservesOrder(t *testing.T) {
	h := New(logger.Nop())
	conn := &fakeConn{}
	h.Register(conn, access.Pro)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	for _, ticker := range []string{"AAAAA", "BBBBB", "CCCCC"} {
		h.Publish(signalEvent(ticker))
	}

	deadline := time.Now().Add(time.Second)
	for len(conn.received()) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	got := conn.received()
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	for i, want := range []string{"AAAAA", "BBBBB", "CCCCC"} {
		payload := got[i]["payload"].(map[string]interface{})
		if payload["ticker"] != want {
			t.Fatalf("event %d: expected %s, got %v", i, want, payload["ticker"])
		}
		if got[i]["type"] != models.EventSignalCreated || got[i]["timestamp"] == nil {
			t.Fatalf("unexpected envelope %v", got[i])
		}
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	h := New(logger.Nop(), WithQueueSize(1))
	h.Publish(signalEvent("BTCUSDT"))
	h.Publish(signalEvent("BTCUSDT"))
	if len(h.queue) != 1 {
		t.Fatalf("expected queue to hold one event, got %d", len(h.queue))
	}
}

func TestHandleCommand(t *testing.T) {
	h := New(logger.Nop())
	conn := &fakeConn{}
	c := h.Register(conn, access.Basic)
	ctx := context.Background()

	h.HandleCommand(ctx, c, []byte(`{"type":"subscribe","payload":{"tickers":["btcusdt"]}}`))
	if !c.Wants("BTCUSDT") || c.Wants("ETHUSDT") {
		t.Fatalf("subscription not applied: %v", c.Subscriptions())
	}
	h.HandleCommand(ctx, c, []byte(`{"type":"ping"}`))
	h.HandleCommand(ctx, c, []byte(`{"type":"unsubscribe","payload":{"tickers":["BTCUSDT"]}}`))
	if !c.Wants("ETHUSDT") {
		t.Fatalf("expected empty filter after unsubscribe")
	}

	got := conn.received()
	if len(got) != 3 || got[0]["type"] != models.EventSubscribed || got[1]["type"] != models.EventPong {
		t.Fatalf("unexpected replies %v", got)
	}
}

func TestCloseRefusesNewClients(t *testing.T) {
	h := New(logger.Nop())
	first := &fakeConn{}
	h.Register(first, access.Free)
	_ = h.Close()

	if !first.closed || h.Count() != 0 {
		t.Fatalf("expected registry cleared and connections closed")
	}
	late := &fakeConn{}
	if c := h.Register(late, access.Free); c != nil || !late.closed {
		t.Fatalf("expected registration refused after close")
	}
}
