package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type PingHandler struct {
	logger    *slog.Logger
	platforms []string
}

func NewPingHandler(log *slog.Logger, platforms []string) *PingHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PingHandler{
		logger:    log.With(slog.String("handler", "ping")),
		platforms: platforms,
	}
}

func (h *PingHandler) Register(e *echo.Echo) {
	e.GET("/", h.Root)
	e.GET("/health", h.Health)
	e.HEAD("/health", h.HealthHead)
}

func (h *PingHandler) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"service":   "namecard processor",
		"platforms": h.platforms,
	})
}

func (h *PingHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

func (h *PingHandler) HealthHead(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}
