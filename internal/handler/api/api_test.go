package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/internal/hub"
	"SignalHub/internal/repository"
	"SignalHub/internal/service/binance"
	"SignalHub/internal/service/marketdata"
	"SignalHub/internal/usecase"
	xhttp "SignalHub/pkg/http"
	"SignalHub/pkg/logger"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	testSecret  = "test-secret"
	testWebhook = "hook-secret"
)

type fixture struct {
	e    *echo.Echo
	auth *Auth
	hub  *hub.Hub
	repo *repository.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.Nop()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(upstream.Close)

	repo := repository.NewMemoryStore()
	if err := repository.Seed(context.Background(), repo); err != nil {
		t.Fatalf("seed: %v", err)
	}
	h := hub.New(log)
	t.Cleanup(func() { _ = h.Close() })

	gw := marketdata.NewGateway(binance.NewClient(upstream.URL, time.Second, 100, 10), repo, log, marketdata.WithFallback(marketdata.NewFallback(7)))
	ing := usecase.NewSignalIngestor(repo, h, nil, log, nil)
	auth := NewAuth(testSecret, testWebhook, "admin", log)

	e := echo.New()
	handlers := []xhttp.Handler{
		NewHealthHandler(repo, h),
		NewTickersHandler(log, auth, repo),
		NewMarketHandler(log, auth, gw),
		NewSignalsHandler(log, auth, repo, ing),
		NewWSHandler(log, auth, h, []string{"https://app.example.com"}, time.Minute, 30*time.Second),
	}
	for _, hd := range handlers {
		hd.RegisterRoutes(e)
	}
	return &fixture{e: e, auth: auth, hub: h, repo: repo}
}

func (f *fixture) token(t *testing.T, tier, role string) string {
	t.Helper()
	tok, err := f.auth.Sign(Claims{
		Tier: tier,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func (f *fixture) do(method, target, token, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v (%s)", err, env.Data)
		}
	}
}

func TestPriceFallsBackWithMarker(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/public/market/price/btcusdt", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var q models.PriceQuote
	decode(t, rec, &q)
	if !q.IsFallback || q.Symbol != "BTCUSDT" {
		t.Fatalf("expected fallback quote, got %+v", q)
	}

	rec = f.do(http.MethodGet, "/api/public/market/price/b!", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed symbol, got %d", rec.Code)
	}
}

func TestCandlesRequireBasicTier(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/public/ohlc?symbol=BTCUSDT&limit=5", "", "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for free tier, got %d", rec.Code)
	}
	var errs []xhttp.AppError
	decode(t, rec, &errs)
	if len(errs) != 1 || errs[0].Params["required_tier"] != "basic" {
		t.Fatalf("expected required tier in response, got %s", rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/public/ohlc?symbol=BTCUSDT&limit=5", f.token(t, "premium", ""), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var candles []models.Candle
	decode(t, rec, &candles)
	if len(candles) != 5 || !candles[0].IsFallback {
		t.Fatalf("expected 5 fallback candles, got %d", len(candles))
	}

	rec = f.do(http.MethodGet, "/api/public/ohlc?symbol=btcusdt&interval=1D&limit=2", f.token(t, "basic", ""), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected lower-case symbol to be accepted, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &candles)
	if len(candles) != 2 || candles[0].Ticker != "BTCUSDT" || candles[0].Interval != "1d" {
		t.Fatalf("query not normalized: %+v", candles)
	}
}

func TestUnknownTierIsFreeAndBadTokenIsRejected(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/public/ohlc?symbol=BTCUSDT", f.token(t, "platinum", ""), "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unknown tier should be free, got %d", rec.Code)
	}
	rec = f.do(http.MethodGet, "/api/public/tickers", "not-a-jwt", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for invalid token, got %d", rec.Code)
	}
}

func TestTickersListing(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/public/tickers", "", "")
	var enabled []models.Ticker
	decode(t, rec, &enabled)
	if rec.Code != http.StatusOK || len(enabled) != len(repository.SeedTickers) {
		t.Fatalf("expected %d tickers, got %d (%d)", len(repository.SeedTickers), len(enabled), rec.Code)
	}

	rec = f.do(http.MethodGet, "/api/tickers?category=major&limit=2", "", "")
	var page TickerPage
	decode(t, rec, &page)
	if page.Total != 4 || len(page.Tickers) != 2 || page.Limit != 2 {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestCreateSignalAndQuery(t *testing.T) {
	f := newFixture(t)
	body := `{"ticker":"BTCUSDT","direction":"buy","price":50000,"timeframe":"1W","source":"manual"}`

	if rec := f.do(http.MethodPost, "/api/signals", "", body); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/signals", f.token(t, "pro", "user"), body); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without admin role, got %d", rec.Code)
	}

	admin := f.token(t, "pro", "admin")
	rec := f.do(http.MethodPost, "/api/signals", admin, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sig models.Signal
	decode(t, rec, &sig)
	if sig.ID == "" || sig.Ticker != "BTCUSDT" || sig.UserID == nil || *sig.UserID != "user-1" {
		t.Fatalf("unexpected signal %+v", sig)
	}

	basic := f.token(t, "basic", "")
	rec = f.do(http.MethodGet, "/api/public/signals/alerts?ticker=BTCUSDT", basic, "")
	var list []models.Signal
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != sig.ID {
		t.Fatalf("expected stored signal in alerts, got %s", rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/public/signals/alerts?ticker=%20btcusdt&timeframe=1w", basic, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected lower-case ticker to be accepted, got %d: %s", rec.Code, rec.Body.String())
	}
	decode(t, rec, &list)
	if len(list) != 1 || list[0].ID != sig.ID {
		t.Fatalf("normalized query missed the signal: %s", rec.Body.String())
	}

	if rec := f.do(http.MethodGet, "/api/signals/"+sig.ID, basic, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for signal lookup, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/signals/missing", basic, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateSignalReportsEveryField(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/signals", f.token(t, "pro", "admin"),
		`{"ticker":"BTCUSDT","direction":"hold","price":0,"timeframe":"2W"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	var verrs xhttp.ValidationErrors
	decode(t, rec, &verrs)
	for _, field := range []string{"direction", "price", "timeframe"} {
		if !verrs.Has(field) {
			t.Fatalf("missing %s in %v", field, verrs.Fields())
		}
	}
}

func TestWebhookSecret(t *testing.T) {
	f := newFixture(t)
	body := `{"id":"tv-1","ticker":"ETHUSDT","signalType":"SELL","price":"3100.5","timeframe":"4h","source":"manual"}`

	if rec := f.do(http.MethodPost, "/api/webhooks/tradingview", "", body, "X-Webhook-Secret", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/webhooks/tradingview?secret="+testWebhook, "", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var sig models.Signal
	decode(t, rec, &sig)
	if sig.Source != "webhook" || sig.Direction != models.DirectionSell {
		t.Fatalf("unexpected webhook signal %+v", sig)
	}

	rec = f.do(http.MethodPost, "/api/webhooks/tradingview", "", body, "X-Webhook-Secret", testWebhook)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on re-delivery, got %d", rec.Code)
	}
}

func TestImport(t *testing.T) {
	f := newFixture(t)
	body := `{"signals":[
		{"id":"h-1","ticker":"BTCUSDT","direction":"buy","price":42000,"timestamp":"2024-01-01T00:00:00Z","timeframe":"1W","source":"historical"},
		{"id":"h-2","ticker":"NOPEUSDT","direction":"buy","price":1,"timeframe":"1W"}
	]}`
	rec := f.do(http.MethodPost, "/api/admin/signals/import", f.token(t, "pro", "admin"), body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var sum usecase.BatchSummary
	decode(t, rec, &sum)
	if sum.Created != 1 || sum.Failed != 1 || !sum.Items[1].Errors.Has("ticker") {
		t.Fatalf("unexpected summary %s", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/api/health", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"storage":"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestWebsocketDeliversByTier(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + f.token(t, "basic", "")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() map[string]interface{} {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]interface{}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	hello := read()
	if hello["type"] != models.EventConnectionEstablished {
		t.Fatalf("expected connection.established, got %v", hello)
	}
	if payload, _ := hello["payload"].(map[string]interface{}); payload["tier"] != "basic" {
		t.Fatalf("expected basic tier, got %v", hello["payload"])
	}

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if pong := read(); pong["type"] != models.EventPong {
		t.Fatalf("expected pong, got %v", pong)
	}

	n := f.hub.Broadcast(context.Background(), models.Event{
		Type:         models.EventSignalCreated,
		Payload:      map[string]string{"ticker": "BTCUSDT"},
		Ticker:       "BTCUSDT",
		RequiredTier: "basic",
	})
	if n != 1 {
		t.Fatalf("expected one delivery, got %d", n)
	}
	if ev := read(); ev["type"] != models.EventSignalCreated {
		t.Fatalf("expected signal.created, got %v", ev)
	}
}

func TestWebsocketChecksOrigin(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.org"}})
	if err == nil {
		t.Fatalf("expected upgrade from a foreign origin to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign origin, got %v", resp)
	}

	for _, h := range []http.Header{{"Origin": {"https://app.example.com"}}, nil} {
		conn, _, err := websocket.DefaultDialer.Dial(url, h)
		if err != nil {
			t.Fatalf("dial with origin %v: %v", h, err)
		}
		_ = conn.Close()
	}
}
