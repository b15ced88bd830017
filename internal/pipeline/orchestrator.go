package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meishihq/meishi/internal/card"
	"github.com/meishihq/meishi/internal/platform"
	"github.com/meishihq/meishi/internal/pool"
	"github.com/meishihq/meishi/internal/store/notion"
	"github.com/meishihq/meishi/internal/vision"
)

// Extractor turns image bytes into a card record.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (card.Record, error)
}

// Persister writes a card record to durable storage.
type Persister interface {
	PersistCard(ctx context.Context, record card.Record) (notion.Reference, error)
}

// Collaborators are the external service handles one run drives.
// Fetchers and Notifiers are keyed by originating platform.
type Collaborators struct {
	Fetchers  map[platform.Type]platform.Fetcher
	Notifiers map[platform.Type]platform.Notifier
	Extractor Extractor
	Store     Persister
}

// Timeouts bound the run as a whole and the individual platform calls.
// Extraction and persistence are bounded by their clients' own HTTP
// timeouts plus the run deadline.
type Timeouts struct {
	RunDeadline time.Duration
	Fetch       time.Duration
	Notify      time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.RunDeadline <= 0 {
		t.RunDeadline = 90 * time.Second
	}
	if t.Fetch <= 0 {
		t.Fetch = 20 * time.Second
	}
	if t.Notify <= 0 {
		t.Notify = 10 * time.Second
	}
	return t
}

// Orchestrator executes one processing run per update: photo updates go
// through fetch → extract → store, command and text updates get a
// lightweight reply. Every terminal outcome except a failed delivery is
// reported back to the originating conversation.
type Orchestrator struct {
	logger   *slog.Logger
	collab   Collaborators
	pool     *pool.Pool
	timeouts Timeouts
}

// NewOrchestrator wires the collaborators into an orchestrator.
func NewOrchestrator(log *slog.Logger, collab Collaborators, p *pool.Pool, timeouts Timeouts) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		logger:   log.With(slog.String("component", "orchestrator")),
		collab:   collab,
		pool:     p,
		timeouts: timeouts.withDefaults(),
	}
}

// Run processes a single update to its terminal outcome. It never
// returns an error: every collaborator failure is absorbed into the
// outcome and, where a conversation exists, notified.
func (o *Orchestrator) Run(ctx context.Context, update platform.Update) Outcome {
	log := o.logger.With(
		slog.String("run_id", uuid.NewString()),
		slog.String("platform", string(update.Platform)),
		slog.String("update_id", update.UpdateID),
	)

	switch update.Payload.Kind {
	case platform.PayloadPhoto:
		// Falls through to the pipeline below.
	case platform.PayloadCommand:
		return o.reply(ctx, log, update, replyForCommand(update.Payload.Text))
	default:
		if update.ConversationID == "" {
			log.Debug("nothing to do for update without conversation")
			return Outcome{Kind: KindSkipped}
		}
		return o.reply(ctx, log, update, usageHintText)
	}

	started := time.Now()
	o.notifyText(ctx, log, update, processingStartedText)

	runCtx, cancel := context.WithTimeout(ctx, o.timeouts.RunDeadline)
	defer cancel()

	outcome, record := o.process(runCtx, log, update)
	o.notifyText(ctx, log, update, messageForOutcome(outcome, record))
	log.Info("run finished",
		slog.String("outcome", string(outcome.Kind)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return outcome
}

// process drives the pipeline stages strictly in sequence. A stage
// failure short-circuits everything after it; a failure caused by the
// expired run deadline is reported as a timeout instead of the stage's
// own class.
func (o *Orchestrator) process(ctx context.Context, log *slog.Logger, update platform.Update) (Outcome, card.Record) {
	fetcher, ok := o.collab.Fetchers[update.Platform]
	if !ok {
		return failed(KindFetchFailed, fmt.Sprintf("no image source for platform %s", update.Platform)), card.Record{}
	}

	image, err := o.fetchImage(ctx, fetcher, update.Payload.FileID)
	if err != nil {
		if timedOut, outcome := o.deadlineOutcome(ctx); timedOut {
			return outcome, card.Record{}
		}
		log.Warn("image fetch failed", slog.Any("error", err))
		return failed(KindFetchFailed, fetchReason(err)), card.Record{}
	}
	log.Debug("image fetched", slog.Int("bytes", len(image)))

	record, err := o.extract(ctx, image)
	if err != nil {
		if timedOut, outcome := o.deadlineOutcome(ctx); timedOut {
			return outcome, card.Record{}
		}
		log.Warn("extraction failed", slog.Any("error", err))
		return failed(KindExtractionFailed, extractionReason(err)), card.Record{}
	}

	ref, err := o.persist(ctx, record)
	if err != nil {
		if timedOut, outcome := o.deadlineOutcome(ctx); timedOut {
			return outcome, record
		}
		log.Warn("store failed", slog.Any("error", err))
		category, reason := storeClassification(err)
		return storeFailed(category, reason), record
	}
	return success(ref), record
}

func (o *Orchestrator) deadlineOutcome(ctx context.Context) (bool, Outcome) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true, failed(KindTimedOut, "run deadline exceeded")
	}
	return false, Outcome{}
}

func (o *Orchestrator) fetchImage(ctx context.Context, fetcher platform.Fetcher, fileID string) ([]byte, error) {
	release, err := o.pool.Acquire(ctx, pool.Fetch)
	if err != nil {
		return nil, platform.NewFetchError(platform.FetchNetwork, err)
	}
	defer release()

	fetchCtx, cancel := context.WithTimeout(ctx, o.timeouts.Fetch)
	defer cancel()
	return fetcher.FetchImage(fetchCtx, fileID)
}

func (o *Orchestrator) extract(ctx context.Context, image []byte) (card.Record, error) {
	release, err := o.pool.Acquire(ctx, pool.Extract)
	if err != nil {
		return card.Record{}, fmt.Errorf("%w: %v", vision.ErrService, err)
	}
	defer release()
	return o.collab.Extractor.Extract(ctx, image)
}

func (o *Orchestrator) persist(ctx context.Context, record card.Record) (notion.Reference, error) {
	release, err := o.pool.Acquire(ctx, pool.Store)
	if err != nil {
		return notion.Reference{}, fmt.Errorf("%w: %v", notion.ErrService, err)
	}
	defer release()
	return o.collab.Store.PersistCard(ctx, record)
}

// reply answers a command or plain-text update and terminates the run.
func (o *Orchestrator) reply(ctx context.Context, log *slog.Logger, update platform.Update, text string) Outcome {
	o.notifyText(ctx, log, update, text)
	log.Info("run finished", slog.String("outcome", string(KindReplied)))
	return Outcome{Kind: KindReplied}
}

// notifyText delivers a message to the update's conversation. Delivery
// failures are logged and swallowed; they never reopen the run. The
// delivery context is detached from the run deadline so a timed-out run
// can still report itself.
func (o *Orchestrator) notifyText(ctx context.Context, log *slog.Logger, update platform.Update, text string) {
	if update.ConversationID == "" || text == "" {
		return
	}
	notifier, ok := o.collab.Notifiers[update.Platform]
	if !ok {
		log.Warn("no notifier for platform", slog.String("platform", string(update.Platform)))
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeouts.Notify)
	defer cancel()
	if err := notifier.Notify(notifyCtx, update.ConversationID, text); err != nil {
		log.Warn("notification delivery failed", slog.Any("error", err))
	}
}

func fetchReason(err error) string {
	switch platform.FetchKind(err) {
	case platform.FetchExpired:
		return "file reference expired"
	case platform.FetchForbidden:
		return "file access forbidden"
	case platform.FetchNotFound:
		return "file not found"
	default:
		return "network error"
	}
}

// extractionReason maps a vision failure to the user-visible reason text
// embedded in the notification.
func extractionReason(err error) string {
	switch {
	case errors.Is(err, vision.ErrEmptyResponse):
		return "無法從圖片中識別出名片資訊"
	case errors.Is(err, vision.ErrMalformedResponse):
		return "AI 回應格式異常"
	case errors.Is(err, vision.ErrQuotaExceeded):
		return "AI 服務額度已用盡，請稍後再試"
	default:
		return "AI 服務暫時無法使用"
	}
}

func storeClassification(err error) (StoreCategory, string) {
	switch {
	case errors.Is(err, notion.ErrUnauthorized):
		return StoreCategoryUnauthorized, err.Error()
	case errors.Is(err, notion.ErrForbidden):
		return StoreCategoryForbidden, err.Error()
	case errors.Is(err, notion.ErrNotFound):
		return StoreCategoryNotFound, err.Error()
	default:
		return StoreCategoryService, err.Error()
	}
}
