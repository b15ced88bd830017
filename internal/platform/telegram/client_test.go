package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/meishihq/meishi/internal/platform"
)

type fakeBot struct {
	fileURL    string
	fileErr    error
	fileBlock  chan struct{}
	sent       []tgbotapi.MessageConfig
	sendErr    error
	getMeErr   error
	getMeCalls int
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if b.fileBlock != nil {
		<-b.fileBlock
	}
	if b.fileErr != nil {
		return "", b.fileErr
	}
	return b.fileURL, nil
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{MessageID: 1}, b.sendErr
}

func (b *fakeBot) GetMe() (tgbotapi.User, error) {
	b.getMeCalls++
	return tgbotapi.User{UserName: "meishi_bot"}, b.getMeErr
}

func withFakeBot(t *testing.T, bot botAPI) *Client {
	t.Helper()
	newBotAPIForTest = func(token string) (botAPI, error) { return bot, nil }
	t.Cleanup(func() { newBotAPIForTest = nil })
	return NewClient(nil, "test-token")
}

func TestNotifySendsToChat(t *testing.T) {
	bot := &fakeBot{}
	client := withFakeBot(t, bot)

	if err := client.Notify(context.Background(), "12345", "card saved"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bot.sent))
	}
	if bot.sent[0].ChatID != 12345 {
		t.Fatalf("unexpected chat id: %d", bot.sent[0].ChatID)
	}
	if bot.sent[0].Text != "card saved" {
		t.Fatalf("unexpected text: %s", bot.sent[0].Text)
	}
}

func TestNotifyRejectsNonNumericTarget(t *testing.T) {
	client := withFakeBot(t, &fakeBot{})

	err := client.Notify(context.Background(), "@not-a-chat-id", "hi")
	var de *platform.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
}

func TestNotifyWrapsSendFailure(t *testing.T) {
	client := withFakeBot(t, &fakeBot{sendErr: fmt.Errorf("boom")})

	err := client.Notify(context.Background(), "12345", "hi")
	var de *platform.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Target != "12345" {
		t.Fatalf("unexpected target: %s", de.Target)
	}
}

func TestNotifyTruncatesLongText(t *testing.T) {
	bot := &fakeBot{}
	client := withFakeBot(t, bot)

	if err := client.Notify(context.Background(), "1", strings.Repeat("x", maxMessageLength+100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := len(bot.sent[0].Text); got > maxMessageLength {
		t.Fatalf("text not truncated: %d bytes", got)
	}
	if !strings.HasSuffix(bot.sent[0].Text, "...") {
		t.Fatal("truncated text should end with ellipsis")
	}
}

func TestNotifyWithoutTokenFails(t *testing.T) {
	client := NewClient(nil, "")

	err := client.Notify(context.Background(), "1", "hi")
	var de *platform.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
}

func TestProbeUsesGetMe(t *testing.T) {
	bot := &fakeBot{}
	client := withFakeBot(t, bot)

	if err := client.Probe(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bot.getMeCalls != 1 {
		t.Fatalf("expected 1 getMe call, got %d", bot.getMeCalls)
	}
}

func TestProbeReportsFailure(t *testing.T) {
	client := withFakeBot(t, &fakeBot{getMeErr: fmt.Errorf("unauthorized")})

	if err := client.Probe(context.Background()); err == nil {
		t.Fatal("expected probe error")
	}
}

func TestFetchImageDownloadsBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("image-bytes"))
	}))
	defer srv.Close()

	client := withFakeBot(t, &fakeBot{fileURL: srv.URL + "/file/photo.jpg"})
	fetcher := NewFetcher(client, 0)

	data, err := fetcher.FetchImage(context.Background(), "file-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != "image-bytes" {
		t.Fatalf("unexpected body: %s", data)
	}
}

func TestFetchImageExpiredReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := withFakeBot(t, &fakeBot{fileURL: srv.URL + "/file/photo.jpg"})
	fetcher := NewFetcher(client, 0)

	_, err := fetcher.FetchImage(context.Background(), "file-1")
	if platform.FetchKind(err) != platform.FetchExpired {
		t.Fatalf("expected expired classification, got %v", err)
	}
}

func TestFetchImageForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := withFakeBot(t, &fakeBot{fileURL: srv.URL + "/file/photo.jpg"})
	fetcher := NewFetcher(client, 0)

	_, err := fetcher.FetchImage(context.Background(), "file-1")
	if platform.FetchKind(err) != platform.FetchForbidden {
		t.Fatalf("expected forbidden classification, got %v", err)
	}
}

func TestFetchImageResolveFailure(t *testing.T) {
	client := withFakeBot(t, &fakeBot{fileErr: fmt.Errorf("wrong file_id")})
	fetcher := NewFetcher(client, 0)

	_, err := fetcher.FetchImage(context.Background(), "file-1")
	var fe *platform.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestFetchImageResolveHonorsContextDeadline(t *testing.T) {
	// The resolve step goes through the Bot API, not the download URL; a
	// hung connection there must not outlive the caller's deadline.
	bot := &fakeBot{fileBlock: make(chan struct{})}
	client := withFakeBot(t, bot)
	fetcher := NewFetcher(client, 0)
	defer close(bot.fileBlock)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := fetcher.FetchImage(ctx, "file-1")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("fetch blocked for %v past its deadline", elapsed)
	}
	if platform.FetchKind(err) != platform.FetchNetwork {
		t.Fatalf("expected network classification, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestFetchImageEmptyFileID(t *testing.T) {
	client := withFakeBot(t, &fakeBot{})
	fetcher := NewFetcher(client, 0)

	_, err := fetcher.FetchImage(context.Background(), "  ")
	if platform.FetchKind(err) != platform.FetchNotFound {
		t.Fatalf("expected not_found classification, got %v", err)
	}
}
