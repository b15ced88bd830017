package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/meishihq/meishi/internal/card"
)

const extractionPrompt = `You are a business card information extractor.
Analyze the card in this image and answer with a single JSON object using
exactly these keys (omit or use "" for anything not readable):
  "name"               person's full name
  "company"            company or organization name
  "department"         department or unit
  "title"              job title
  "email"              email address
  "phone"              phone number
  "address"            postal address
  "decision_influence" one of "高", "中", "低", inferred from the title
  "notes"              any other remark worth keeping
Answer with the JSON object only, no explanations.`

// Client calls the Gemini generateContent endpoint to extract card fields
// from an image. When the primary API key runs out of quota and a fallback
// key is configured, the client switches to the fallback once and stays on
// it for the rest of the process lifetime.
type Client struct {
	logger     *slog.Logger
	model      string
	baseURL    string
	httpClient *http.Client

	mu            sync.Mutex
	apiKey        string
	fallbackKey   string
	usingFallback bool
}

// NewClient creates a Gemini vision client.
func NewClient(log *slog.Logger, apiKey, fallbackKey, model, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		logger:      log.With(slog.String("client", "vision")),
		model:       strings.TrimSpace(model),
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		apiKey:      strings.TrimSpace(apiKey),
		fallbackKey: strings.TrimSpace(fallbackKey),
	}
}

// Extract sends the image to the vision model and parses the response into
// a card record.
func (c *Client) Extract(ctx context.Context, imageBytes []byte) (card.Record, error) {
	if len(imageBytes) == 0 {
		return card.Record{}, fmt.Errorf("%w: no image data", ErrService)
	}
	key := c.currentKey()
	if key == "" {
		return card.Record{}, fmt.Errorf("%w: api key is not configured", ErrService)
	}

	text, err := c.generateContent(ctx, key, imageBytes)
	if err != nil {
		if isQuotaError(err) {
			if fallback, switched := c.switchToFallback(); switched {
				c.logger.Warn("primary api key exhausted, switching to fallback key")
				text, err = c.generateContent(ctx, fallback, imageBytes)
				if err != nil {
					return card.Record{}, err
				}
				return ParseRecord(text)
			}
		}
		return card.Record{}, err
	}
	return ParseRecord(text)
}

// Probe verifies the API key by retrieving the configured model.
func (c *Client) Probe(ctx context.Context) error {
	key := c.currentKey()
	if key == "" {
		return fmt.Errorf("gemini api key is not configured")
	}
	endpoint := fmt.Sprintf("%s/models/%s?key=%s", c.baseURL, c.model, key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini model lookup: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini model lookup status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) currentKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback {
		return c.fallbackKey
	}
	return c.apiKey
}

// switchToFallback flips to the fallback key. Returns false when there is
// no fallback or it is already active.
func (c *Client) switchToFallback() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.usingFallback || c.fallbackKey == "" {
		return "", false
	}
	c.usingFallback = true
	return c.fallbackKey, true
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) generateContent(ctx context.Context, apiKey string, imageBytes []byte) (string, error) {
	payload := generateRequest{
		Contents: []content{{
			Parts: []part{
				{Text: extractionPrompt},
				{InlineData: &inlineData{
					MimeType: http.DetectContentType(imageBytes),
					Data:     base64.StdEncoding.EncodeToString(imageBytes),
				}},
			},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrService, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: status 429", ErrQuotaExceeded)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if containsQuotaKeyword(string(respBody)) {
			return "", fmt.Errorf("%w: status %d", ErrQuotaExceeded, resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, summarize(respBody))
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Error != nil {
		if containsQuotaKeyword(parsed.Error.Status + " " + parsed.Error.Message) {
			return "", fmt.Errorf("%w: %s", ErrQuotaExceeded, parsed.Error.Message)
		}
		return "", fmt.Errorf("%w: %s", ErrService, parsed.Error.Message)
	}
	var text strings.Builder
	for _, candidate := range parsed.Candidates {
		for _, p := range candidate.Content.Parts {
			text.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return "", ErrEmptyResponse
	}
	return text.String(), nil
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	return containsQuotaKeyword(err.Error())
}

var quotaKeywords = []string{
	"quota",
	"resource exhausted",
	"rate limit",
	"429",
	"usage limit",
	"billing",
}

func containsQuotaKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, keyword := range quotaKeywords {
		if strings.Contains(s, keyword) {
			return true
		}
	}
	return false
}

func summarize(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		return text[:200]
	}
	return text
}
