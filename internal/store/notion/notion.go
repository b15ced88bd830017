// Package notion persists extracted card records as pages in a Notion
// database.
package notion

import "errors"

// Store failure classes. Handlers translate these into operator-facing
// hint texts, so the classification must distinguish credential problems
// from sharing/permission problems and from a missing database.
var (
	// ErrUnauthorized means the API key was rejected.
	ErrUnauthorized = errors.New("notion: unauthorized")
	// ErrForbidden means the key is valid but the integration has no
	// access to the database.
	ErrForbidden = errors.New("notion: forbidden")
	// ErrNotFound means the database does not exist or is not shared
	// with the integration.
	ErrNotFound = errors.New("notion: database not found")
	// ErrService covers all other persistence failures.
	ErrService = errors.New("notion: service error")
)

// Reference points at the stored page.
type Reference struct {
	PageID string
	URL    string
}
