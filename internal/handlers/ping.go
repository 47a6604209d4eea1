package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ccdsupport/ticketdesk/internal/healthcheck"
	"github.com/ccdsupport/ticketdesk/internal/relay"
)

type PingHandler struct {
	service  *relay.Service
	checkers []healthcheck.Checker
	logger   *slog.Logger
}

type PingResponse struct {
	Status  string `json:"status"`
	Discord string `json:"discord"`
}

func NewPingHandler(log *slog.Logger, service *relay.Service, checkers []healthcheck.Checker) *PingHandler {
	return &PingHandler{
		service:  service,
		checkers: checkers,
		logger:   log.With(slog.String("handler", "ping")),
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/ping", h.Ping)
	e.HEAD("/health", h.PingHead)
	e.GET("/health/checks", h.Checks)
}

// Ping godoc
// @Summary Liveness probe
// @Tags health
// @Success 200 {object} PingResponse
// @Router /ping [get]
func (h *PingHandler) Ping(c echo.Context) error {
	discord := "configured"
	if !h.service.Configured() {
		discord = "missing_token"
	}
	return c.JSON(http.StatusOK, PingResponse{Status: "ok", Discord: discord})
}

func (h *PingHandler) PingHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

// Checks godoc
// @Summary Runtime checks
// @Description Evaluate Discord and mail configuration; 503 when any check fails
// @Tags health
// @Success 200 {object} healthcheck.Report
// @Failure 503 {object} healthcheck.Report
// @Router /health/checks [get]
func (h *PingHandler) Checks(c echo.Context) error {
	report := healthcheck.Run(c.Request().Context(), h.checkers...)
	status := http.StatusOK
	if report.Status == healthcheck.StatusError {
		status = http.StatusServiceUnavailable
		h.logger.Warn("health checks failing", slog.Int("checks", len(report.Checks)))
	}
	return c.JSON(status, report)
}
