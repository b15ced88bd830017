package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/meishihq/meishi/internal/platform"
)

const maxImageBytes int64 = 20 << 20 // Telegram bot file download cap.

// Fetcher downloads photo bytes through the Telegram file API. File paths
// returned by getFile are short-lived, so a failed download is reported to
// the user instead of retried.
type Fetcher struct {
	client     *Client
	httpClient *http.Client
}

// NewFetcher creates an image fetcher bound to the shared Telegram client.
func NewFetcher(client *Client, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Fetcher{
		client:     client,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// FetchImage resolves the file reference and downloads its bytes.
func (f *Fetcher) FetchImage(ctx context.Context, fileID string) ([]byte, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return nil, platform.NewFetchError(platform.FetchNotFound, fmt.Errorf("file id is required"))
	}
	bot, err := f.client.getBot()
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, err)
	}
	downloadURL, err := resolveFileURL(ctx, bot, fileID)
	if err != nil {
		return nil, platform.NewFetchError(classifyResolveError(err), fmt.Errorf("resolve telegram file url: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("build download request: %w", err))
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("download image: %w", err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden:
		return nil, platform.NewFetchError(platform.FetchForbidden, fmt.Errorf("download status: %d", resp.StatusCode))
	case http.StatusNotFound, http.StatusGone:
		// File paths from getFile expire after roughly an hour.
		return nil, platform.NewFetchError(platform.FetchExpired, fmt.Errorf("download status: %d", resp.StatusCode))
	default:
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("download status: %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("read image body: %w", err))
	}
	if int64(len(data)) > maxImageBytes {
		return nil, platform.NewFetchError(platform.FetchNetwork, fmt.Errorf("image exceeds %d bytes", maxImageBytes))
	}
	if len(data) == 0 {
		return nil, platform.NewFetchError(platform.FetchNotFound, errors.New("empty image body"))
	}
	return data, nil
}

// resolveFileURL runs getFile raced against ctx. The bot's own client
// timeout bounds the call too, but the run deadline may be shorter and
// must win: a hung resolve returns here, the stray goroutine finishes
// against the client timeout on its own.
func resolveFileURL(ctx context.Context, bot botAPI, fileID string) (string, error) {
	type result struct {
		url string
		err error
	}
	done := make(chan result, 1)
	go func() {
		url, err := bot.GetFileDirectURL(fileID)
		done <- result{url: url, err: err}
	}()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.url, res.err
	}
}

func classifyResolveError(err error) platform.FetchErrorKind {
	switch {
	case isAPIError(err, http.StatusForbidden):
		return platform.FetchForbidden
	case isAPIError(err, http.StatusNotFound):
		return platform.FetchNotFound
	case isAPIError(err, http.StatusBadRequest):
		// Telegram answers 400 "wrong file_id" for stale references.
		return platform.FetchExpired
	default:
		return platform.FetchNetwork
	}
}
