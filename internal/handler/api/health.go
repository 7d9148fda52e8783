package api

import (
	"context"
	"net/http"
	"time"

	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/internal/hub"
	xhttp "SignalHub/pkg/http"

	"github.com/labstack/echo/v4"
)

type HealthHandler struct {
	repo domrepo.Repository
	hub  *hub.Hub
}

func NewHealthHandler(repo domrepo.Repository, h *hub.Hub) *HealthHandler {
	return &HealthHandler{repo: repo, hub: h}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/health", h.Health)
}

type healthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Storage     string    `json:"storage"`
	Connections int       `json:"connections"`
}

func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	res := healthStatus{Status: "ok", Timestamp: time.Now().UTC(), Storage: "ok", Connections: h.hub.Count()}
	code := http.StatusOK
	if err := h.repo.Health(ctx); err != nil {
		res.Status = "degraded"
		res.Storage = err.Error()
		code = http.StatusServiceUnavailable
	}
	return xhttp.DataResponse(c, code, res)
}
