package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/meishihq/meishi/internal/platform"
)

const (
	// maxBodyBytes caps the inbound webhook body. Platform updates are
	// small; anything larger is hostile or broken.
	maxBodyBytes = 1 << 20

	ackBody     = "OK"
	testAckBody = "Test data received successfully"
)

// UpdateDispatcher schedules background processing for a validated
// update. Enqueue must never block the webhook request.
type UpdateDispatcher interface {
	Enqueue(update platform.Update) bool
}

// WebhookHandler is the synchronous intake boundary: it validates the
// payload shape, acknowledges immediately and hands the update off for
// asynchronous processing. Pipeline failures never surface here.
type WebhookHandler struct {
	logger     *slog.Logger
	registry   *platform.Registry
	dispatcher UpdateDispatcher
}

// NewWebhookHandler creates the intake handler.
func NewWebhookHandler(log *slog.Logger, registry *platform.Registry, dispatcher UpdateDispatcher) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		logger:     log.With(slog.String("handler", "webhook")),
		registry:   registry,
		dispatcher: dispatcher,
	}
}

// Register mounts the webhook routes. The platform-specific aliases are
// the paths the bots were historically registered under with LINE and
// Telegram, so existing webhook registrations keep working.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhook/:platform", h.Receive)
	e.POST("/callback", func(c echo.Context) error { return h.receive(c, "line") })
	e.POST("/telegram-webhook", func(c echo.Context) error { return h.receive(c, "telegram") })
}

// Receive handles POST /webhook/:platform.
func (h *WebhookHandler) Receive(c echo.Context) error {
	return h.receive(c, c.Param("platform"))
}

func (h *WebhookHandler) receive(c echo.Context, platformName string) error {
	adapter, ok := h.registry.Get(platform.Type(platformName))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown platform")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable request body")
	}
	if len(body) > maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "Empty request body")
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil || envelope == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid data format")
	}

	// Deployment self-test probe: acknowledged without touching the
	// pipeline.
	if isSelfTest(envelope) {
		h.logger.Info("self-test payload acknowledged", slog.String("platform", platformName))
		return c.String(http.StatusOK, testAckBody)
	}

	if err := adapter.VerifyRequest(c.Request().Header, body); err != nil {
		h.logger.Warn("webhook signature rejected",
			slog.String("platform", platformName),
			slog.Any("error", err),
		)
		return echo.NewHTTPError(http.StatusBadRequest, "signature verification failed")
	}

	updates, err := adapter.ParseUpdates(body)
	if err != nil {
		if errors.Is(err, platform.ErrInvalidUpdate) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, "Parse error: "+err.Error())
	}

	// The ack covers the whole delivery, so every event in the batch is
	// scheduled. Duplicates and queue overflow are still acknowledged:
	// the platform retried because our ack was slow, not because
	// processing failed.
	for _, update := range updates {
		if !h.dispatcher.Enqueue(update) {
			h.logger.Info("update not scheduled",
				slog.String("platform", platformName),
				slog.String("update_id", update.UpdateID),
			)
		}
	}
	return c.String(http.StatusOK, ackBody)
}

func isSelfTest(envelope map[string]json.RawMessage) bool {
	raw, ok := envelope["test"]
	if !ok {
		return false
	}
	var value string
	return json.Unmarshal(raw, &value) == nil && value == "data"
}
