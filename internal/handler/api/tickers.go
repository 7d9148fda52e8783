package api

import (
	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	xhttp "SignalHub/pkg/http"
	xlogger "SignalHub/pkg/logger"

	"github.com/labstack/echo/v4"
)

type TickersHandler struct {
	logger *xlogger.Logger
	auth   *Auth
	repo   domrepo.Repository
}

func NewTickersHandler(logger *xlogger.Logger, auth *Auth, repo domrepo.Repository) *TickersHandler {
	return &TickersHandler{logger: logger, auth: auth, repo: repo}
}

func (h *TickersHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api", h.auth.ResolveTier(), RequireTier(access.FeatureTickers))
	g.GET("/public/tickers", h.Enabled)
	g.GET("/tickers", h.List)
}

// TickerPage is one page of the ticker listing.
type TickerPage struct {
	Tickers []models.Ticker `json:"tickers"`
	Total   int64           `json:"total"`
	Offset  int             `json:"offset"`
	Limit   int             `json:"limit"`
}

func (h *TickersHandler) Enabled(c echo.Context) error {
	tickers, err := h.repo.GetEnabledTickers(c.Request().Context())
	if err != nil {
		h.logger.Error("list enabled tickers", xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, tickers)
}

func (h *TickersHandler) List(c echo.Context) error {
	req := &models.TickerQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); len(verr) > 0 {
		return xhttp.BadRequestResponse(c, verr)
	}
	tickers, total, err := h.repo.ListTickers(c.Request().Context(), models.TickerFilter{
		Search:   req.Search,
		Category: req.Category,
		Enabled:  req.EnabledFilter(),
		Limit:    req.Limit,
		Offset:   req.Offset,
	})
	if err != nil {
		h.logger.Error("list tickers", xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, TickerPage{Tickers: tickers, Total: total, Offset: req.Offset, Limit: req.Limit})
}
