package server

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/meishihq/meishi/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

func NewServer(log *slog.Logger, addr string, webhookHandler *handlers.WebhookHandler, pingHandler *handlers.PingHandler, statusHandler *handlers.StatusHandler) *Server {
	if log == nil {
		log = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			log.Info("request",
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			)
			return nil
		},
	}))

	if webhookHandler != nil {
		webhookHandler.Register(e)
	}
	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if statusHandler != nil {
		statusHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
