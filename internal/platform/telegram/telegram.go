package telegram

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meishihq/meishi/internal/platform"
)

// Type is the Telegram platform identifier.
const Type platform.Type = "telegram"

// Adapter parses Telegram webhook bodies into the shared update envelope.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates a Telegram adapter with the given logger.
func NewAdapter(log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{
		logger: log.With(slog.String("adapter", "telegram")),
	}
}

// Type returns the Telegram platform type.
func (a *Adapter) Type() platform.Type {
	return Type
}

// VerifyRequest is a no-op: Telegram webhooks are authenticated by URL
// secrecy, not request signatures.
func (a *Adapter) VerifyRequest(http.Header, []byte) error {
	return nil
}

// ParseUpdates builds an Update from a raw Telegram webhook body. Telegram
// delivers one update per request, so the slice always has one element. A
// body without an update_id is not a Telegram update and fails validation.
func (a *Adapter) ParseUpdates(body []byte) ([]platform.Update, error) {
	var raw struct {
		UpdateID *int64            `json:"update_id"`
		Message  *tgbotapi.Message `json:"message"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", platform.ErrInvalidUpdate, err)
	}
	if raw.UpdateID == nil {
		return nil, fmt.Errorf("%w: missing update_id", platform.ErrInvalidUpdate)
	}

	update := platform.Update{
		Platform: Type,
		UpdateID: strconv.FormatInt(*raw.UpdateID, 10),
		Payload:  platform.Payload{Kind: platform.PayloadUnrecognized},
	}
	msg := raw.Message
	if msg == nil {
		return []platform.Update{update}, nil
	}
	if msg.Chat != nil {
		update.ConversationID = strconv.FormatInt(msg.Chat.ID, 10)
	}
	if msg.From != nil {
		update.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}

	if len(msg.Photo) > 0 {
		photo := pickPhoto(msg.Photo)
		update.Payload = platform.Payload{
			Kind:      platform.PayloadPhoto,
			FileID:    photo.FileID,
			Width:     photo.Width,
			Height:    photo.Height,
			SizeBytes: int64(photo.FileSize),
		}
		return []platform.Update{update}, nil
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/"):
		update.Payload = platform.Payload{Kind: platform.PayloadCommand, Text: text}
	case text != "":
		update.Payload = platform.Payload{Kind: platform.PayloadText, Text: text}
	}
	return []platform.Update{update}, nil
}

// pickPhoto selects the variant with the largest pixel area. Telegram
// orders the array ascending, but ranking by area keeps the choice
// correct even for out-of-order payloads.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	if len(items) == 0 {
		return tgbotapi.PhotoSize{}
	}
	best := items[0]
	for _, item := range items[1:] {
		if item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
