package api

import (
	"net/http"

	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/usecase"
	xhttp "SignalHub/pkg/http"
	xlogger "SignalHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

// SignalsHandler exposes signal queries and the ingestion entry points.
type SignalsHandler struct {
	logger   *xlogger.Logger
	auth     *Auth
	repo     domrepo.Repository
	ingestor *usecase.SignalIngestor
}

func NewSignalsHandler(logger *xlogger.Logger, auth *Auth, repo domrepo.Repository, ingestor *usecase.SignalIngestor) *SignalsHandler {
	return &SignalsHandler{logger: logger, auth: auth, repo: repo, ingestor: ingestor}
}

func (h *SignalsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.auth.ResolveTier())
	g.GET("/public/signals/alerts", h.Alerts, RequireTier(access.FeatureSignals))
	g.GET("/signals/:id", h.Get, RequireTier(access.FeatureSignals))
	g.POST("/signals", h.Create, h.auth.RequireAdmin())
	g.POST("/admin/signals/import", h.Import, h.auth.RequireAdmin())

	e.POST("/api/webhooks/tradingview", h.Webhook, h.auth.RequireWebhookSecret())
}

// Alerts lists the latest signals of a ticker, newest first.
func (h *SignalsHandler) Alerts(c echo.Context) error {
	req := &models.SignalAlertsQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); len(verr) > 0 {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)

	signals, err := h.repo.GetSignalsByTicker(c.Request().Context(), req.Ticker, string(tf), req.Limit)
	if err != nil {
		h.logger.Error("list signals", xlogger.String("ticker", req.Ticker), xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, signals)
}

func (h *SignalsHandler) Get(c echo.Context) error {
	sig, err := h.repo.GetSignalByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, sig)
}

// Create ingests a manually entered signal.
func (h *SignalsHandler) Create(c echo.Context) error {
	var raw models.RawSignal
	if err := c.Bind(&raw); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed signal body"))
	}
	if raw.UserID == "" {
		raw.UserID = IdentityFrom(c).Subject
	}
	return h.ingest(c, raw)
}

// Webhook ingests a signal pushed by a charting platform.
func (h *SignalsHandler) Webhook(c echo.Context) error {
	var raw models.RawSignal
	if err := c.Bind(&raw); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed webhook body"))
	}
	raw.Source = "webhook"
	return h.ingest(c, raw)
}

// Import ingests a batch; each element succeeds or fails on its own.
func (h *SignalsHandler) Import(c echo.Context) error {
	var req models.ImportRequest
	if err := c.Bind(&req); err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("malformed import body"))
	}
	if len(req.Signals) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("signals must not be empty"))
	}
	for i := range req.Signals {
		if req.Signals[i].Source == "" {
			req.Signals[i].Source = "import"
		}
	}
	summary := h.ingestor.IngestBatch(c.Request().Context(), req.Signals)
	h.logger.Info("signals imported",
		xlogger.Int("total", summary.Total),
		xlogger.Int("created", summary.Created),
		xlogger.Int("updated", summary.Updated),
		xlogger.Int("failed", summary.Failed),
	)
	return xhttp.SuccessResponse(c, summary)
}

func (h *SignalsHandler) ingest(c echo.Context, raw models.RawSignal) error {
	sig, created, err := h.ingestor.Ingest(c.Request().Context(), raw)
	if err != nil {
		return errorResponse(c, err)
	}
	if created {
		return xhttp.CreatedResponse(c, sig)
	}
	return xhttp.DataResponse(c, http.StatusOK, sig)
}
