package api

import (
	"net/http"
	"time"

	"SignalHub/internal/domain/models"
	"SignalHub/internal/hub"
	"SignalHub/pkg/http/middleware"
	xlogger "SignalHub/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// WSHandler upgrades clients onto the realtime channel.
type WSHandler struct {
	logger     *xlogger.Logger
	auth       *Auth
	hub        *hub.Hub
	upgrader   websocket.Upgrader
	pongWait   time.Duration
	pingPeriod time.Duration
}

// NewWSHandler creates the handler. Open connections are closed by Hub.Close.
// Browsers do not apply CORS to websocket upgrades, so the upgrader checks
// the Origin header against allowedOrigins itself. Requests without an
// Origin header come from non-browser clients and are accepted.
func NewWSHandler(logger *xlogger.Logger, auth *Auth, h *hub.Hub, allowedOrigins []string, pongWait, pingPeriod time.Duration) *WSHandler {
	origins := middleware.NewOriginPolicy(allowedOrigins)
	return &WSHandler{
		logger:     logger,
		auth:       auth,
		hub:        h,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins.Allows(origin)
			},
		},
	}
}

func (h *WSHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.Serve, h.auth.ResolveTier())
}

func (h *WSHandler) Serve(c echo.Context) error {
	id := IdentityFrom(c)
	ctx := c.Request().Context()
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade", xlogger.Error(err))
		return nil
	}

	ws := hub.NewWSConn(conn)
	client := h.hub.Register(ws, id.Tier)
	if client == nil {
		return nil
	}

	_ = h.hub.SendTo(ctx, client, models.Event{
		Type: models.EventConnectionEstablished,
		Payload: map[string]string{
			"clientId": client.ID,
			"tier":     id.Tier.String(),
		},
	})

	// Blocks until the client disconnects.
	h.hub.Serve(ctx, client, ws, h.pongWait, h.pingPeriod)
	return nil
}
