package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meishihq/meishi/internal/platform"
)

const maxContentBytes int64 = 20 << 20

// Client talks to the LINE Messaging API. It covers the three
// collaborator roles the pipeline needs from LINE: message content
// download, push-message delivery, and a reachability probe.
type Client struct {
	logger      *slog.Logger
	accessToken string
	apiBaseURL  string
	dataBaseURL string
	httpClient  *http.Client
}

// NewClient creates a LINE Messaging API client.
func NewClient(log *slog.Logger, accessToken, apiBaseURL, dataBaseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		logger:      log.With(slog.String("client", "line")),
		accessToken: strings.TrimSpace(accessToken),
		apiBaseURL:  strings.TrimRight(apiBaseURL, "/"),
		dataBaseURL: strings.TrimRight(dataBaseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// FetchImage downloads the content of an image message.
func (c *Client) FetchImage(ctx context.Context, messageID string) ([]byte, error) {
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return nil, platform.NewFetchError(platform.FetchNotFound, fmt.Errorf("message id is required"))
	}
	if c.accessToken == "" {
		return nil, platform.NewFetchError(platform.FetchForbidden, fmt.Errorf("line access token is not configured"))
	}
	endpoint := fmt.Sprintf("%s/v2/bot/message/%s/content", c.dataBaseURL, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("build content request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("download content: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, platform.NewFetchError(platform.FetchForbidden, fmt.Errorf("content status: %d", resp.StatusCode))
	case http.StatusNotFound, http.StatusGone:
		// LINE keeps message content for a limited retention period.
		return nil, platform.NewFetchError(platform.FetchExpired, fmt.Errorf("content status: %d", resp.StatusCode))
	default:
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("content status: %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes+1))
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("read content body: %w", err))
	}
	if int64(len(data)) > maxContentBytes {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("content exceeds %d bytes", maxContentBytes))
	}
	if len(data) == 0 {
		return nil, platform.NewFetchError(platform.FetchNotFound, fmt.Errorf("empty content body"))
	}
	return data, nil
}

// Notify pushes a text message to the given conversation.
func (c *Client) Notify(ctx context.Context, conversationID, text string) error {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return &platform.DeliveryError{Target: conversationID, Err: fmt.Errorf("conversation id is required")}
	}
	if c.accessToken == "" {
		return &platform.DeliveryError{Target: conversationID, Err: fmt.Errorf("line access token is not configured")}
	}
	payload := map[string]any{
		"to": conversationID,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBaseURL+"/v2/bot/message/push", bytes.NewReader(body))
	if err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &platform.DeliveryError{Target: conversationID, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &platform.DeliveryError{
			Target: conversationID,
			Err:    fmt.Errorf("push status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}
	return nil
}

// Probe verifies the channel access token against the bot info endpoint.
func (c *Client) Probe(ctx context.Context) error {
	if c.accessToken == "" {
		return fmt.Errorf("line access token is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/v2/bot/info", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line bot info: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("line bot info status: %d", resp.StatusCode)
	}
	return nil
}
