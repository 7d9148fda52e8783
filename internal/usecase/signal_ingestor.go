package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"
	"SignalHub/pkg/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const mirrorTimeout = 5 * time.Second

// Broadcaster queues events for realtime delivery without blocking.
type Broadcaster interface {
	Publish(ev models.Event)
}

// SignalIngestor validates raw signals, upserts them and announces the result.
type SignalIngestor struct {
	repo    domrepo.Repository
	hub     Broadcaster
	mirror  domrepo.EventPublisher
	log     *logger.Logger
	metrics domrepo.Metrics
	now     func() time.Time
}

// NewSignalIngestor creates the pipeline. mirror and metrics may be nil.
func NewSignalIngestor(repo domrepo.Repository, hub Broadcaster, mirror domrepo.EventPublisher, log *logger.Logger, metrics domrepo.Metrics) *SignalIngestor {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &SignalIngestor{
		repo:    repo,
		hub:     hub,
		mirror:  mirror,
		log:     log,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates and stores one signal. It returns xhttp.ValidationErrors
// listing every invalid field, or an error wrapping ErrPersistence. Events are
// published only after the signal is stored.
func (s *SignalIngestor) Ingest(ctx context.Context, raw models.RawSignal) (models.Signal, bool, error) {
	raw.Normalize()

	verrs := xhttp.ValidateStruct(ctx, &raw)
	if !verrs.Has("ticker") {
		if _, err := s.repo.GetTickerBySymbol(ctx, raw.Ticker); err != nil {
			if !errors.Is(err, domrepo.ErrNotFound) {
				s.metrics.RecordSignalIngested(raw.Source, "error")
				return models.Signal{}, false, err
			}
			verrs = append(verrs, xhttp.ValidationError{
				Code:    "ERR_UNKNOWN_TICKER",
				Field:   "ticker",
				Message: fmt.Sprintf("ticker %s is not listed", raw.Ticker),
				Params:  map[string]interface{}{"value": raw.Ticker},
			})
		}
	}
	if len(verrs) > 0 {
		s.metrics.RecordSignalIngested(raw.Source, "invalid")
		return models.Signal{}, false, verrs
	}

	sig := s.build(raw)
	stored, created, err := s.repo.CreateSignal(ctx, sig)
	if err != nil {
		s.metrics.RecordSignalIngested(raw.Source, "error")
		s.log.Error("persist signal", logger.String("id", sig.ID), logger.String("ticker", sig.Ticker), logger.Error(err))
		return models.Signal{}, false, err
	}

	evType := models.EventSignalUpdated
	result := "updated"
	if created {
		evType = models.EventSignalCreated
		result = "created"
	}
	s.metrics.RecordSignalIngested(stored.Source, result)
	s.announce(ctx, models.Event{
		Type:         evType,
		Payload:      stored,
		Ticker:       stored.Ticker,
		RequiredTier: access.Requirement(access.FeatureRealtimeSignals).String(),
		Timestamp:    s.now(),
	})

	s.log.Info("signal ingested",
		logger.String("id", stored.ID),
		logger.String("ticker", stored.Ticker),
		logger.String("source", stored.Source),
		logger.Bool("created", created),
	)
	return stored, created, nil
}

// ItemResult is the outcome of one element of a batch.
type ItemResult struct {
	Index   int                    `json:"index"`
	Signal  *models.Signal         `json:"signal,omitempty"`
	Created bool                   `json:"created,omitempty"`
	Errors  xhttp.ValidationErrors `json:"errors,omitempty"`
}

// BatchSummary counts the outcomes of a batch.
type BatchSummary struct {
	Total   int          `json:"total"`
	Created int          `json:"created"`
	Updated int          `json:"updated"`
	Failed  int          `json:"failed"`
	Items   []ItemResult `json:"items"`
}

// IngestBatch ingests every element independently; one bad element never
// stops the rest.
func (s *SignalIngestor) IngestBatch(ctx context.Context, raws []models.RawSignal) BatchSummary {
	out := BatchSummary{Total: len(raws), Items: make([]ItemResult, 0, len(raws))}
	for i, raw := range raws {
		item := ItemResult{Index: i}
		sig, created, err := s.Ingest(ctx, raw)

		var verrs xhttp.ValidationErrors
		switch {
		case errors.As(err, &verrs):
			item.Errors = verrs
			out.Failed++
		case err != nil:
			item.Errors = xhttp.ValidationErrors{{Code: "ERR_PERSISTENCE", Message: err.Error()}}
			out.Failed++
		default:
			item.Signal = &sig
			item.Created = created
			if created {
				out.Created++
			} else {
				out.Updated++
			}
		}
		out.Items = append(out.Items, item)
	}
	return out
}

func (s *SignalIngestor) build(raw models.RawSignal) models.Signal {
	id := raw.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := util.ParseTimeDefault(string(raw.Timestamp), s.now())

	sig := models.Signal{
		ID:        id,
		Ticker:    raw.Ticker,
		Direction: models.Direction(raw.Direction),
		Price:     decimal.RequireFromString(string(raw.Price)),
		Timestamp: ts,
		Timeframe: raw.Timeframe,
		Source:    raw.Source,
		Note:      raw.Note,
	}
	if raw.UserID != "" {
		uid := raw.UserID
		sig.UserID = &uid
	}
	return sig
}

// announce hands the event to the hub and, when configured, mirrors it to the
// event bus in the background.
func (s *SignalIngestor) announce(ctx context.Context, ev models.Event) {
	s.hub.Publish(ev)
	if s.mirror == nil {
		return
	}
	go func() {
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		if err := s.mirror.PublishEvent(mctx, ev); err != nil {
			s.metrics.RecordError("event_mirror")
			s.log.Warn("mirror event", logger.String("type", ev.Type), logger.Error(err))
		}
	}()
}
