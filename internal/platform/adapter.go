package platform

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrInvalidUpdate marks a payload that is structurally valid JSON but does
// not carry a recognizable update for the platform. The webhook boundary
// maps it to a 400 response; it never reaches the pipeline.
var ErrInvalidUpdate = errors.New("invalid platform update")

// Adapter translates a platform's raw webhook body into the shared Update
// envelope.
type Adapter interface {
	Type() Type
	// VerifyRequest checks platform-level request authentication (e.g.
	// LINE's X-Line-Signature). Adapters without a signature scheme
	// return nil.
	VerifyRequest(header http.Header, body []byte) error
	// ParseUpdates builds one Update per event carried by the raw webhook
	// body; platforms that batch (LINE) yield several. Bodies that do not
	// match the platform schema fail with an error wrapping
	// ErrInvalidUpdate.
	ParseUpdates(body []byte) ([]Update, error)
}

// FetchErrorKind classifies image download failures.
type FetchErrorKind string

const (
	FetchExpired   FetchErrorKind = "expired"
	FetchForbidden FetchErrorKind = "forbidden"
	FetchNotFound  FetchErrorKind = "not_found"
	FetchNetwork   FetchErrorKind = "network"
)

// FetchError is a typed image download failure.
type FetchError struct {
	Kind FetchErrorKind
	Err  error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch image: %s", e.Kind)
	}
	return fmt.Sprintf("fetch image: %s: %v", e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError wraps err with a fetch classification.
func NewFetchError(kind FetchErrorKind, err error) *FetchError {
	return &FetchError{Kind: kind, Err: err}
}

// FetchKind extracts the classification from err, defaulting to network.
func FetchKind(err error) FetchErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return FetchNetwork
}

// Fetcher downloads the raw bytes of a platform file reference. The call
// is bounded: implementations time out instead of hanging the run.
type Fetcher interface {
	FetchImage(ctx context.Context, fileID string) ([]byte, error)
}

// DeliveryError reports that the final user notification could not be
// delivered. It is logged by the caller, never retried.
type DeliveryError struct {
	Target string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s: %v", e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Notifier sends a status or result message back to the originating
// conversation.
type Notifier interface {
	Notify(ctx context.Context, conversationID, text string) error
}

// Prober is implemented by collaborator handles that can verify their
// external service is reachable with the configured credentials.
type Prober interface {
	Probe(ctx context.Context) error
}
