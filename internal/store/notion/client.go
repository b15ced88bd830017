package notion

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

	"github.com/meishihq/meishi/internal/card"
)

const notionVersion = "2022-06-28"

// Client talks to the Notion REST API. Pages are created in a single
// configured database whose schema matches the card fields.
type Client struct {
	logger     *slog.Logger
	apiKey     string
	databaseID string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Notion store client.
func NewClient(log *slog.Logger, apiKey, databaseID, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:     log.With(slog.String("client", "notion")),
		apiKey:     strings.TrimSpace(apiKey),
		databaseID: strings.TrimSpace(databaseID),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type pageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PersistCard creates a page for the record and returns its reference.
func (c *Client) PersistCard(ctx context.Context, record card.Record) (Reference, error) {
	if c.apiKey == "" {
		return Reference{}, fmt.Errorf("%w: api key is not configured", ErrUnauthorized)
	}
	if c.databaseID == "" {
		return Reference{}, fmt.Errorf("%w: database id is not configured", ErrNotFound)
	}

	payload := map[string]any{
		"parent":     map[string]string{"database_id": c.databaseID},
		"properties": buildProperties(record),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Reference{}, fmt.Errorf("%w: %v", ErrService, err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/v1/pages", body)
	if err != nil {
		return Reference{}, err
	}

	var page pageResponse
	if err := json.Unmarshal(respBody, &page); err != nil {
		return Reference{}, fmt.Errorf("%w: decode page: %v", ErrService, err)
	}
	c.logger.Info("card stored", slog.String("page_id", page.ID))
	return Reference{PageID: page.ID, URL: page.URL}, nil
}

// Probe retrieves the target database to verify both the key and the
// database share.
func (c *Client) Probe(ctx context.Context) error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: api key is not configured", ErrUnauthorized)
	}
	if c.databaseID == "" {
		return fmt.Errorf("%w: database id is not configured", ErrNotFound)
	}
	_, err := c.do(ctx, http.MethodGet, "/v1/databases/"+c.databaseID, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", notionVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrService, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrService, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, classifyStatus(resp.StatusCode, respBody)
}

// classifyStatus maps a failed Notion response to one of the store error
// classes using both the HTTP status and the API error code.
func classifyStatus(status int, body []byte) error {
	var details apiError
	_ = json.Unmarshal(body, &details)
	message := details.Message
	if message == "" {
		message = strings.TrimSpace(string(body))
		if len(message) > 200 {
			message = message[:200]
		}
	}

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case status == http.StatusForbidden, details.Code == "restricted_resource":
		return fmt.Errorf("%w: %s", ErrForbidden, message)
	case status == http.StatusNotFound, details.Code == "object_not_found":
		return fmt.Errorf("%w: %s", ErrNotFound, message)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrService, status, message)
	}
}

// buildProperties maps card fields onto the database schema. Empty fields
// are omitted so partial cards still produce a page.
func buildProperties(record card.Record) map[string]any {
	props := map[string]any{}
	if record.Name != "" {
		props["Name"] = map[string]any{
			"title": []any{textContent(record.Name)},
		}
	}
	if record.Company != "" {
		props["公司名稱"] = richText(record.Company)
	}
	if record.Department != "" {
		props["部門"] = richText(record.Department)
	}
	if record.Title != "" {
		props["職稱"] = map[string]any{
			"select": map[string]string{"name": record.Title},
		}
	}
	if record.DecisionInfluence != "" {
		props["決策影響力"] = map[string]any{
			"select": map[string]string{"name": record.DecisionInfluence},
		}
	}
	if record.Email != "" {
		props["Email"] = map[string]any{"email": record.Email}
	}
	if record.Phone != "" {
		props["電話"] = map[string]any{"phone_number": record.Phone}
	}
	if record.Address != "" {
		props["地址"] = richText(record.Address)
	}
	if record.Notes != "" {
		props["備註"] = richText(record.Notes)
	}
	return props
}

func richText(text string) map[string]any {
	return map[string]any{
		"rich_text": []any{textContent(text)},
	}
}

func textContent(text string) map[string]any {
	return map[string]any{
		"text": map[string]string{"content": text},
	}
}
