// Package pipeline drives the asynchronous card-processing runs: it
// receives validated updates from the webhook boundary, sequences
// fetch, extraction and persistence, and reports the terminal result
// back to the originating conversation.
package pipeline

import "github.com/meishihq/meishi/internal/store/notion"

// Kind tags the terminal result of one run.
type Kind string

const (
	// KindSuccess means the card was extracted and stored.
	KindSuccess Kind = "success"
	// KindReplied means a command or plain-text update was answered on
	// the lightweight reply path, with no pipeline stages involved.
	KindReplied Kind = "replied"
	// KindFetchFailed means the image could not be downloaded.
	KindFetchFailed Kind = "fetch_failed"
	// KindExtractionFailed means the vision model produced no usable record.
	KindExtractionFailed Kind = "extraction_failed"
	// KindStoreFailed means the record could not be persisted.
	KindStoreFailed Kind = "store_failed"
	// KindTimedOut means the whole-run deadline expired mid-stage.
	KindTimedOut Kind = "timed_out"
	// KindSkipped means the update carried nothing to act on and no
	// conversation to answer (e.g. a platform verification ping).
	KindSkipped Kind = "skipped"
)

// StoreCategory narrows a store failure so the notification can tell the
// operator which credential or share to check.
type StoreCategory string

const (
	StoreCategoryNone         StoreCategory = ""
	StoreCategoryUnauthorized StoreCategory = "unauthorized"
	StoreCategoryForbidden    StoreCategory = "forbidden"
	StoreCategoryNotFound     StoreCategory = "not_found"
	StoreCategoryService      StoreCategory = "service"
)

// Outcome is the single terminal result of a run. Exactly one is
// produced per update handed to the orchestrator.
type Outcome struct {
	Kind          Kind
	Reference     notion.Reference
	Reason        string
	StoreCategory StoreCategory
}

func success(ref notion.Reference) Outcome {
	return Outcome{Kind: KindSuccess, Reference: ref}
}

func failed(kind Kind, reason string) Outcome {
	return Outcome{Kind: kind, Reason: reason}
}

func storeFailed(category StoreCategory, reason string) Outcome {
	return Outcome{Kind: KindStoreFailed, Reason: reason, StoreCategory: category}
}
