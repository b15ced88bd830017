// Package vision extracts structured business-card records from images
// through the Gemini generative vision API.
package vision

import "errors"

// Extraction failure classes. The orchestrator maps anything unknown to
// ErrService for its stage.
var (
	// ErrEmptyResponse means the model answered but produced no usable
	// card fields.
	ErrEmptyResponse = errors.New("vision: empty extraction response")
	// ErrMalformedResponse means the model output could not be parsed as
	// the expected card JSON shape.
	ErrMalformedResponse = errors.New("vision: malformed extraction response")
	// ErrQuotaExceeded means the API key ran out of quota and no fallback
	// key could serve the request.
	ErrQuotaExceeded = errors.New("vision: api quota exceeded")
	// ErrService covers all other vision service failures.
	ErrService = errors.New("vision: service error")
)
