package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// Header is a message header attached by Publish.
type Header struct {
	Key   string
	Value string
}

// Producer writes keyed JSON messages. The hash balancer sends every message
// of one key to the same partition, so per-ticker order survives.
type Producer struct {
	writer      *kafka.Writer
	compression string
}

// NewProducer creates a new Kafka producer.
func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		RequiredAcks: -1,
		Compression:  "snappy",
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers are required")
	}

	codec, ok := compressionCodecs[cfg.Compression]
	if !ok {
		return nil, fmt.Errorf("unsupported compression %q", cfg.Compression)
	}

	initProducerMetricsOnce()
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  codec,
			MaxAttempts:  cfg.MaxAttempts,
			WriteTimeout: cfg.WriteTimeout,
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			Async:        cfg.Async,
		},
		compression: cfg.Compression,
	}, nil
}

// Publish encodes value and writes it to topic. A trace id found in ctx is
// forwarded as the trace_id header.
func (p *Producer) Publish(ctx context.Context, topic string, key []byte, value interface{}, headers ...Header) error {
	msg, err := buildMessage(ctx, topic, key, value, headers)
	if err != nil {
		producerMessages.WithLabelValues(topic, "encode_error").Inc()
		return err
	}

	start := time.Now()
	err = p.writer.WriteMessages(ctx, msg)
	producerLatency.WithLabelValues(topic).Observe(time.Since(start).Seconds())
	if err != nil {
		producerMessages.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("write to %s: %w", topic, err)
	}
	producerMessages.WithLabelValues(topic, "ok").Inc()
	producerBytes.WithLabelValues(topic, p.compression).Add(float64(len(msg.Value)))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func buildMessage(ctx context.Context, topic string, key []byte, value interface{}, headers []Header) (kafka.Message, error) {
	var body []byte
	switch v := value.(type) {
	case []byte:
		body = v
	case json.RawMessage:
		body = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return kafka.Message{}, fmt.Errorf("marshal value: %w", err)
		}
		body = b
	}

	msg := kafka.Message{Topic: topic, Key: key, Value: body, Time: time.Now().UTC()}
	for _, h := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: h.Key, Value: []byte(h.Value)})
	}
	if id := TraceID(ctx); id != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "trace_id", Value: []byte(id)})
	}
	return msg, nil
}

var compressionCodecs = map[string]kafka.Compression{
	"":       kafka.Snappy,
	"snappy": kafka.Snappy,
	"gzip":   kafka.Gzip,
	"lz4":    kafka.Lz4,
	"zstd":   kafka.Zstd,
}

var (
	producerMessages *prometheus.CounterVec
	producerBytes    *prometheus.CounterVec
	producerLatency  *prometheus.HistogramVec
	producerOnce     sync.Once
)

func initProducerMetricsOnce() {
	producerOnce.Do(func() {
		producerMessages = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "signalhub_kafka_producer_messages_total", Help: "Messages published to Kafka by result"},
			[]string{"topic", "result"},
		)
		producerBytes = promauto.NewCounterVec(
			prometheus.CounterOpts{Name: "signalhub_kafka_producer_bytes_total", Help: "Payload bytes published"},
			[]string{"topic", "compression"},
		)
		producerLatency = promauto.NewHistogramVec(
			prometheus.HistogramOpts{Name: "signalhub_kafka_producer_publish_seconds", Help: "Publish latency"},
			[]string{"topic"},
		)
	})
}
