package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	"github.com/meishihq/meishi/internal/platform"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseOne(t *testing.T, a *Adapter, body []byte) platform.Update {
	t.Helper()
	updates, err := a.ParseUpdates(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(updates))
	}
	return updates[0]
}

func TestVerifyRequestAcceptsValidSignature(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "channel-secret")
	body := []byte(`{"events":[]}`)
	header := http.Header{}
	header.Set(signatureHeader, signBody("channel-secret", body))

	if err := a.VerifyRequest(header, body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVerifyRequestRejectsBadSignature(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "channel-secret")
	body := []byte(`{"events":[]}`)
	header := http.Header{}
	header.Set(signatureHeader, signBody("wrong-secret", body))

	if err := a.VerifyRequest(header, body); !errors.Is(err, platform.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestVerifyRequestRejectsMissingHeader(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "channel-secret")
	if err := a.VerifyRequest(http.Header{}, []byte(`{}`)); !errors.Is(err, platform.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestVerifyRequestSkippedWithoutSecret(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	if err := a.VerifyRequest(http.Header{}, []byte(`{}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseUpdatesImageMessage(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	body := []byte(`{
		"destination": "Uxxx",
		"events": [{
			"type": "message",
			"webhookEventId": "01HE3",
			"replyToken": "rt-1",
			"source": {"type": "user", "userId": "U123"},
			"message": {"id": "m-77", "type": "image"}
		}]
	}`)
	update := parseOne(t, a, body)
	if update.Platform != Type {
		t.Fatalf("unexpected platform: %s", update.Platform)
	}
	if update.UpdateID != "01HE3" {
		t.Fatalf("unexpected update id: %s", update.UpdateID)
	}
	if update.ConversationID != "U123" {
		t.Fatalf("unexpected conversation id: %s", update.ConversationID)
	}
	if update.Payload.Kind != platform.PayloadPhoto {
		t.Fatalf("unexpected payload kind: %s", update.Payload.Kind)
	}
	if update.Payload.FileID != "m-77" {
		t.Fatalf("unexpected file id: %s", update.Payload.FileID)
	}
}

func TestParseUpdatesBatchedEvents(t *testing.T) {
	t.Parallel()

	// A user sending several photos quickly arrives as one delivery with
	// multiple events; each must surface as its own update.
	a := NewAdapter(nil, "")
	body := []byte(`{
		"destination": "Uxxx",
		"events": [
			{"type": "message", "webhookEventId": "ev-1", "source": {"userId": "U1"}, "message": {"id": "m1", "type": "image"}},
			{"type": "message", "webhookEventId": "ev-2", "source": {"userId": "U1"}, "message": {"id": "m2", "type": "image"}},
			{"type": "message", "webhookEventId": "ev-3", "source": {"userId": "U1"}, "message": {"id": "m3", "type": "text", "text": "hello"}}
		]
	}`)
	updates, err := a.ParseUpdates(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(updates) != 3 {
		t.Fatalf("expected 3 updates, got %d", len(updates))
	}
	if updates[0].UpdateID != "ev-1" || updates[1].UpdateID != "ev-2" || updates[2].UpdateID != "ev-3" {
		t.Fatalf("unexpected update ids: %s %s %s", updates[0].UpdateID, updates[1].UpdateID, updates[2].UpdateID)
	}
	if updates[0].Payload.FileID != "m1" || updates[1].Payload.FileID != "m2" {
		t.Fatalf("unexpected file ids: %s %s", updates[0].Payload.FileID, updates[1].Payload.FileID)
	}
	if updates[2].Payload.Kind != platform.PayloadText {
		t.Fatalf("unexpected payload kind: %s", updates[2].Payload.Kind)
	}
}

func TestParseUpdatesTextAndCommand(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")

	update := parseOne(t, a, []byte(`{"events":[{"type":"message","source":{"userId":"U1"},"message":{"id":"m1","type":"text","text":"/help"}}]}`))
	if update.Payload.Kind != platform.PayloadCommand {
		t.Fatalf("unexpected payload kind: %s", update.Payload.Kind)
	}

	update = parseOne(t, a, []byte(`{"events":[{"type":"message","source":{"userId":"U1"},"message":{"id":"m2","type":"text","text":"hello"}}]}`))
	if update.Payload.Kind != platform.PayloadText {
		t.Fatalf("unexpected payload kind: %s", update.Payload.Kind)
	}
}

func TestParseUpdatesGroupConversation(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	update := parseOne(t, a, []byte(`{"events":[{"type":"message","source":{"type":"group","groupId":"G9","userId":"U1"},"message":{"id":"m1","type":"text","text":"hi"}}]}`))
	if update.ConversationID != "G9" {
		t.Fatalf("unexpected conversation id: %s", update.ConversationID)
	}
	if update.SenderID != "U1" {
		t.Fatalf("unexpected sender id: %s", update.SenderID)
	}
}

func TestParseUpdatesMissingEvents(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	if _, err := a.ParseUpdates([]byte(`{"destination":"Uxxx"}`)); !errors.Is(err, platform.ErrInvalidUpdate) {
		t.Fatalf("expected ErrInvalidUpdate, got %v", err)
	}
}

func TestParseUpdatesVerificationPing(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	update := parseOne(t, a, []byte(`{"destination":"Uxxx","events":[]}`))
	if update.Payload.Kind != platform.PayloadUnrecognized {
		t.Fatalf("unexpected payload kind: %s", update.Payload.Kind)
	}
}

func TestParseUpdatesNonMessageEvent(t *testing.T) {
	t.Parallel()

	a := NewAdapter(nil, "")
	update := parseOne(t, a, []byte(`{"events":[{"type":"follow","webhookEventId":"01X","source":{"userId":"U1"}}]}`))
	if update.Payload.Kind != platform.PayloadUnrecognized {
		t.Fatalf("unexpected payload kind: %s", update.Payload.Kind)
	}
}
