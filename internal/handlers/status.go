package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meishihq/meishi/internal/healthcheck"
)

// StatusHandler exposes the collaborator status report. Operators use it
// to tell a missing credential apart from a broken external service
// without digging through pipeline logs.
type StatusHandler struct {
	logger     *slog.Logger
	aggregator *healthcheck.Aggregator
}

func NewStatusHandler(log *slog.Logger, aggregator *healthcheck.Aggregator) *StatusHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StatusHandler{
		logger:     log.With(slog.String("handler", "status")),
		aggregator: aggregator,
	}
}

func (h *StatusHandler) Register(e *echo.Echo) {
	e.GET("/test", h.Report)
}

func (h *StatusHandler) Report(c echo.Context) error {
	report := h.aggregator.Report(c.Request().Context())
	return c.JSON(http.StatusOK, report)
}
