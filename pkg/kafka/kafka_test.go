package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestBackoffWithJitterStaysInRange(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: backoff %s out of range", attempt, d)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	ctx := WithTraceID(context.Background(), "t-1")
	msg, err := buildMessage(ctx, "signals.events", []byte("BTCUSDT"), map[string]string{"type": "signal.created"},
		[]Header{{Key: "event_type", Value: "signal.created"}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if string(msg.Value) != `{"type":"signal.created"}` {
		t.Fatalf("unexpected encoding %s", msg.Value)
	}
	if len(msg.Headers) != 2 || msg.Headers[0].Key != "event_type" || ExtractTraceID(msg) != "t-1" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	raw, _ := buildMessage(context.Background(), "t", nil, []byte("raw"), nil)
	if string(raw.Value) != "raw" || len(raw.Headers) != 0 {
		t.Fatalf("bytes must pass through untouched")
	}
}

func TestNewProducerRejectsUnknownCompression(t *testing.T) {
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected compression error")
	}
}

func TestTraceHook(t *testing.T) {
	km := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx, _, _, err := TraceHook().BeforeHandle(context.Background(), "signals.raw", km, nil)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	if TraceID(ctx) != "abc" {
		t.Fatalf("expected trace id in context, got %q", TraceID(ctx))
	}
}

func TestNewRequiresBrokers(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected producer error without brokers")
	}
	if _, err := NewConsumer(); err == nil {
		t.Fatalf("expected consumer error without brokers")
	}
}
