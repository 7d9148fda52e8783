package usecase

import (
	"context"
	"encoding/json"
	"errors"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	xhttp "SignalHub/pkg/http"
	pkgkafka "SignalHub/pkg/kafka"
	"SignalHub/pkg/logger"
)

// KafkaSignalHandler feeds raw signals from a Kafka topic into the ingestor.
// Malformed and invalid messages are logged and acknowledged; storage
// failures are returned so the consumer retries them.
type KafkaSignalHandler struct {
	topic    string
	ingestor *SignalIngestor
	log      *logger.Logger
	metrics  domrepo.Metrics
}

func NewKafkaSignalHandler(topic string, ingestor *SignalIngestor, log *logger.Logger, metrics domrepo.Metrics) *KafkaSignalHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaSignalHandler{topic: topic, ingestor: ingestor, log: log, metrics: metrics}
}

func (h *KafkaSignalHandler) Topic() string { return h.topic }

func (h *KafkaSignalHandler) Handle(ctx context.Context, b []byte) error {
	var raw models.RawSignal
	if err := json.Unmarshal(b, &raw); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		h.log.Warn("drop malformed signal message",
			logger.String("topic", h.topic),
			logger.String("trace_id", pkgkafka.TraceID(ctx)),
			logger.Error(err),
		)
		return nil
	}
	if raw.Source == "" {
		raw.Source = "import"
	}

	_, _, err := h.ingestor.Ingest(ctx, raw)
	var verrs xhttp.ValidationErrors
	if errors.As(err, &verrs) {
		h.log.Warn("drop invalid signal message",
			logger.String("topic", h.topic),
			logger.String("trace_id", pkgkafka.TraceID(ctx)),
			logger.Strings("fields", verrs.Fields()),
		)
		return nil
	}
	return err
}

var _ pkgkafka.MessageHandler = (*KafkaSignalHandler)(nil)
