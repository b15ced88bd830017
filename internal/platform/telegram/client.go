package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meishihq/meishi/internal/platform"
)

const maxMessageLength = 4096

// apiCallTimeout bounds every Bot API round trip. The library's default
// http.Client has no timeout, so a hung connection would otherwise pin a
// pipeline worker past the run deadline.
const apiCallTimeout = 30 * time.Second

// botAPI is the subset of *tgbotapi.BotAPI the client depends on.
type botAPI interface {
	GetFileDirectURL(fileID string) (string, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetMe() (tgbotapi.User, error)
}

var newBotAPIForTest func(token string) (botAPI, error)

// Client is the shared Telegram Bot API handle. The underlying bot session
// is created lazily so a missing token degrades to per-call errors instead
// of refusing to start.
type Client struct {
	logger *slog.Logger
	token  string

	mu  sync.Mutex
	bot botAPI
}

// NewClient creates a Telegram API client for the given bot token.
func NewClient(log *slog.Logger, token string) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		logger: log.With(slog.String("client", "telegram")),
		token:  strings.TrimSpace(token),
	}
}

func (c *Client) getBot() (botAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return c.bot, nil
	}
	if c.token == "" {
		return nil, fmt.Errorf("telegram bot token is not configured")
	}
	if newBotAPIForTest != nil {
		bot, err := newBotAPIForTest(c.token)
		if err != nil {
			return nil, err
		}
		c.bot = bot
		return bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(c.token, tgbotapi.APIEndpoint, &http.Client{Timeout: apiCallTimeout})
	if err != nil {
		c.logger.Error("create bot failed", slog.Any("error", err))
		return nil, err
	}
	c.bot = bot
	return bot, nil
}

// Notify sends a plain text message to the given chat.
func (c *Client) Notify(ctx context.Context, conversationID, text string) error {
	if err := ctx.Err(); err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	bot, err := c.getBot()
	if err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	chatID, err := strconv.ParseInt(strings.TrimSpace(conversationID), 10, 64)
	if err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: fmt.Errorf("telegram target must be a chat id")}
	}
	msg := tgbotapi.NewMessage(chatID, truncateText(sanitizeText(text)))
	if _, err := bot.Send(msg); err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	return nil
}

// Probe verifies the bot token against the Telegram API.
func (c *Client) Probe(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bot, err := c.getBot()
	if err != nil {
		return err
	}
	if _, err := bot.GetMe(); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}

func isAPIError(err error, code int) bool {
	var apiErr tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// sanitizeText ensures text is valid UTF-8 for the Telegram API.
func sanitizeText(text string) string {
	if utf8.ValidString(text) {
		return text
	}
	return strings.ToValidUTF8(text, "")
}

// truncateText truncates text to maxMessageLength on a valid UTF-8 rune
// boundary, appending "..." when truncation occurs.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	const suffix = "..."
	limit := maxMessageLength - len(suffix)
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	return text[:limit] + suffix
}
