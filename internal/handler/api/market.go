package api

import (
	"SignalHub/internal/access"
	"SignalHub/internal/domain/models"
	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/service/marketdata"
	xhttp "SignalHub/pkg/http"
	xlogger "SignalHub/pkg/logger"
	"SignalHub/pkg/util"

	"github.com/labstack/echo/v4"
)

// MarketHandler serves price and candle queries. Upstream failures never
// reach it; degraded answers carry isFallback.
type MarketHandler struct {
	logger  *xlogger.Logger
	auth    *Auth
	gateway *marketdata.Gateway
}

func NewMarketHandler(logger *xlogger.Logger, auth *Auth, gateway *marketdata.Gateway) *MarketHandler {
	return &MarketHandler{logger: logger, auth: auth, gateway: gateway}
}

func (h *MarketHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/public", h.auth.ResolveTier())
	g.GET("/market/price/:symbol", h.Price, RequireTier(access.FeaturePrice))
	g.GET("/ohlc", h.OHLC, RequireTier(access.FeatureCandles))
}

func (h *MarketHandler) Price(c echo.Context) error {
	symbol := util.NormalizeSymbol(c.Param("symbol"))
	q, err := h.gateway.GetPrice(c.Request().Context(), symbol)
	if err != nil {
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, q)
}

func (h *MarketHandler) OHLC(c echo.Context) error {
	req := &models.OHLCQuery{}
	if verr := xhttp.ReadAndValidateRequest(c, req); len(verr) > 0 {
		return xhttp.BadRequestResponse(c, verr)
	}
	candles, err := h.gateway.GetCandles(c.Request().Context(), req.Symbol, domrepo.Interval(req.Interval), req.Limit)
	if err != nil {
		h.logger.Error("ohlc query", xlogger.String("symbol", req.Symbol), xlogger.Error(err))
		return errorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, candles)
}
