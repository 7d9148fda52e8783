package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/repository"
	"SignalHub/pkg/cache"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"

	"github.com/shopspring/decimal"
)

type recordingHub struct {
	mu     sync.Mutex
	events []models.Event
}

func (h *recordingHub) Publish(ev models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, ev)
}

func (h *recordingHub) snapshot() []models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.Event(nil), h.events...)
}

type failingRepo struct {
	domrepo.Repository
}

func (failingRepo) CreateSignal(context.Context, models.Signal) (models.Signal, bool, error) {
	return models.Signal{}, false, domrepo.ErrPersistence
}

func seededStore(t *testing.T) *repository.MemoryStore {
	t.Helper()
	repo := repository.NewMemoryStore()
	if err := repository.Seed(context.Background(), repo); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return repo
}

func validRaw() models.RawSignal {
	return models.RawSignal{
		ID:        "sig-1",
		Ticker:    "btcusdt",
		Direction: "BUY",
		Price:     "65000.5",
		Timestamp: "2024-05-01T00:00:00Z",
		Timeframe: "1w",
	}
}

func TestIngestCreatesThenUpdates(t *testing.T) {
	repo := seededStore(t)
	hub := &recordingHub{}
	ing := NewSignalIngestor(repo, hub, nil, logger.Nop(), nil)

	sig, created, err := ing.Ingest(context.Background(), validRaw())
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !created || sig.Ticker != "BTCUSDT" || sig.Direction != models.DirectionBuy || sig.Timeframe != "1W" {
		t.Fatalf("unexpected signal %+v created=%v", sig, created)
	}
	if !sig.Price.Equal(decimal.RequireFromString("65000.5")) || sig.Source != "manual" {
		t.Fatalf("unexpected price or source: %s %s", sig.Price, sig.Source)
	}

	raw := validRaw()
	raw.Price = "66000"
	_, created, err = ing.Ingest(context.Background(), raw)
	if err != nil || created {
		t.Fatalf("expected update, got created=%v err=%v", created, err)
	}

	evs := hub.snapshot()
	if len(evs) != 2 || evs[0].Type != models.EventSignalCreated || evs[1].Type != models.EventSignalUpdated {
		t.Fatalf("unexpected events %+v", evs)
	}
	if evs[0].RequiredTier != "basic" || evs[0].Ticker != "BTCUSDT" {
		t.Fatalf("unexpected event routing %+v", evs[0])
	}
}

func TestIngestCollectsEveryInvalidField(t *testing.T) {
	hub := &recordingHub{}
	ing := NewSignalIngestor(seededStore(t), hub, nil, logger.Nop(), nil)

	raw := models.RawSignal{Ticker: "BTCUSDT", Direction: "hold", Price: "-3", Timeframe: "2D"}
	_, _, err := ing.Ingest(context.Background(), raw)

	var verrs xhttp.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, f := range []string{"direction", "price", "timeframe"} {
		if !verrs.Has(f) {
			t.Fatalf("expected %s to be reported, got %v", f, verrs.Fields())
		}
	}
	if len(hub.snapshot()) != 0 {
		t.Fatalf("invalid signal must not be published")
	}
}

func TestIngestRejectsUnknownTicker(t *testing.T) {
	ing := NewSignalIngestor(seededStore(t), &recordingHub{}, nil, logger.Nop(), nil)
	raw := validRaw()
	raw.Ticker = "DOGEUSDT"

	_, _, err := ing.Ingest(context.Background(), raw)
	var verrs xhttp.ValidationErrors
	if !errors.As(err, &verrs) || !verrs.Has("ticker") {
		t.Fatalf("expected unknown ticker error, got %v", err)
	}
}

func TestIngestDefaultsIDAndTimestamp(t *testing.T) {
	ing := NewSignalIngestor(seededStore(t), &recordingHub{}, nil, logger.Nop(), nil)
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ing.now = func() time.Time { return fixed }

	raw := validRaw()
	raw.ID = ""
	raw.Timestamp = ""
	sig, _, err := ing.Ingest(context.Background(), raw)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if sig.ID == "" {
		t.Fatalf("expected generated id")
	}
	if !sig.Timestamp.Equal(fixed) {
		t.Fatalf("expected timestamp %s, got %s", fixed, sig.Timestamp)
	}
}

func TestIngestPersistenceFailureDoesNotPublish(t *testing.T) {
	hub := &recordingHub{}
	ing := NewSignalIngestor(failingRepo{seededStore(t)}, hub, nil, logger.Nop(), nil)

	_, _, err := ing.Ingest(context.Background(), validRaw())
	if !errors.Is(err, domrepo.ErrPersistence) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if len(hub.snapshot()) != 0 {
		t.Fatalf("failed write must not be published")
	}
}

func TestIngestBatchIsolatesFailures(t *testing.T) {
	ing := NewSignalIngestor(seededStore(t), &recordingHub{}, nil, logger.Nop(), nil)

	bad := validRaw()
	bad.ID = "sig-2"
	bad.Price = "abc"
	second := validRaw()
	second.ID = "sig-3"

	sum := ing.IngestBatch(context.Background(), []models.RawSignal{validRaw(), bad, second})
	if sum.Total != 3 || sum.Created != 2 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Items[1].Index != 1 || !sum.Items[1].Errors.Has("price") {
		t.Fatalf("expected price error at index 1, got %+v", sum.Items[1])
	}
}

type mirrorSpy struct {
	ch chan models.Event
}

func (m *mirrorSpy) PublishEvent(_ context.Context, ev models.Event) error {
	m.ch <- ev
	return nil
}

func (m *mirrorSpy) Close() error { return nil }

func TestIngestMirrorsEvents(t *testing.T) {
	spy := &mirrorSpy{ch: make(chan models.Event, 1)}
	ing := NewSignalIngestor(seededStore(t), &recordingHub{}, spy, logger.Nop(), nil)

	if _, _, err := ing.Ingest(context.Background(), validRaw()); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	select {
	case ev := <-spy.ch:
		if ev.Type != models.EventSignalCreated {
			t.Fatalf("unexpected mirrored event %s", ev.Type)
		}
	case <-time.After(time.Second):
		t.Fatalf("event was not mirrored")
	}
}

func TestKafkaSignalHandler(t *testing.T) {
	repo := seededStore(t)
	ing := NewSignalIngestor(repo, &recordingHub{}, nil, logger.Nop(), nil)
	h := NewKafkaSignalHandler("signals.raw", ing, logger.Nop(), nil)

	if h.Topic() != "signals.raw" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte("{not json")); err != nil {
		t.Fatalf("malformed message should be dropped, got %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"ticker":"BTCUSDT","direction":"buy"}`)); err != nil {
		t.Fatalf("invalid message should be dropped, got %v", err)
	}

	msg := `{"id":"k-1","ticker":"ETHUSDT","signalType":"sell","price":3100,"timeframe":"4H"}`
	if err := h.Handle(context.Background(), []byte(msg)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	sig, err := repo.GetSignalByID(context.Background(), "k-1")
	if err != nil {
		t.Fatalf("signal not stored: %v", err)
	}
	if sig.Direction != models.DirectionSell || sig.Source != "import" {
		t.Fatalf("unexpected stored signal %+v", sig)
	}

	failing := NewKafkaSignalHandler("signals.raw", NewSignalIngestor(failingRepo{repo}, &recordingHub{}, nil, logger.Nop(), nil), logger.Nop(), nil)
	if err := failing.Handle(context.Background(), []byte(msg)); err == nil {
		t.Fatalf("persistence failure should be returned for retry")
	}
}

type refreshSpy struct {
	mu    sync.Mutex
	calls []string
}

func (s *refreshSpy) Refresh(_ context.Context, symbol string, iv domrepo.Interval, _ int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, symbol+":"+string(iv))
	return true, nil
}

func TestCandleRefresherRunOnce(t *testing.T) {
	repo := seededStore(t)
	spy := &refreshSpy{}
	locks := cache.NewMemoryCache()
	defer locks.Close()

	r, err := NewCandleRefresher(spy, repo, locks, logger.Nop(), nil, []string{"1d", "1w"}, 10, time.Minute)
	if err != nil {
		t.Fatalf("new refresher: %v", err)
	}

	// Another instance holds this series.
	if ok, _ := locks.TryLock(context.Background(), "refresh:BTCUSDT:1w", time.Minute); !ok {
		t.Fatalf("lock not acquired")
	}

	n := r.RunOnce(context.Background())
	want := 2*len(repository.SeedTickers) - 1
	if n != want || len(spy.calls) != want {
		t.Fatalf("expected %d refreshes, got %d (%d calls)", want, n, len(spy.calls))
	}
	for _, c := range spy.calls {
		if c == "BTCUSDT:1w" {
			t.Fatalf("locked series was refreshed")
		}
	}
}

func TestCandleRefresherRejectsBadInterval(t *testing.T) {
	if _, err := NewCandleRefresher(&refreshSpy{}, seededStore(t), nil, logger.Nop(), nil, []string{"3m"}, 10, time.Minute); err == nil {
		t.Fatalf("expected error for unknown interval")
	}
}

type fakeStream struct {
	mu       sync.Mutex
	connects int
	quotes   []models.PriceQuote
}

func (s *fakeStream) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	return nil
}

func (s *fakeStream) Read(ctx context.Context) (<-chan models.PriceQuote, <-chan error) {
	qs := make(chan models.PriceQuote, len(s.quotes))
	errs := make(chan error, 1)
	for _, q := range s.quotes {
		qs <- q
	}
	close(qs)
	close(errs)
	return qs, errs
}

func (s *fakeStream) Close() error { return nil }

func (s *fakeStream) connectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

func TestPriceRelayPublishesAndReconnects(t *testing.T) {
	ts := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	stream := &fakeStream{quotes: []models.PriceQuote{
		{Symbol: "BTCUSDT", Price: decimal.NewFromInt(65000), LastUpdate: ts},
		{Symbol: "BTCUSDT", Price: decimal.NewFromInt(65001), LastUpdate: ts},
	}}
	hub := &recordingHub{}
	relay := NewPriceRelay(stream, hub, logger.Nop(), nil, 1, 10*time.Millisecond)
	relay.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for stream.connectCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := relay.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if stream.connectCount() < 2 {
		t.Fatalf("expected reconnect after stream error")
	}

	evs := hub.snapshot()
	if len(evs) == 0 {
		t.Fatalf("expected price updates")
	}
	ev := evs[0]
	if ev.Type != models.EventPriceUpdate || ev.RequiredTier != "free" || ev.Ticker != "BTCUSDT" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
