package vision

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meishihq/meishi/internal/card"
)

// ParseRecord turns the model's textual answer into a card record.
// Markdown code fences are stripped, unknown fields are dropped, and
// missing fields stay empty. A response that is valid JSON but carries no
// card data at all is ErrEmptyResponse; anything unparsable is
// ErrMalformedResponse.
func ParseRecord(raw string) (card.Record, error) {
	cleaned := stripCodeFences(raw)
	if cleaned == "" {
		return card.Record{}, ErrEmptyResponse
	}

	var record card.Record
	if err := json.Unmarshal([]byte(cleaned), &record); err != nil {
		// Some model revisions wrap the result in a one-element array.
		var records []card.Record
		if arrErr := json.Unmarshal([]byte(cleaned), &records); arrErr != nil || len(records) == 0 {
			return card.Record{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		record = records[0]
	}

	record = record.Normalized()
	if record.IsEmpty() {
		return card.Record{}, ErrEmptyResponse
	}
	return record, nil
}

// stripCodeFences removes a surrounding markdown code block
// (```json ... ```) if present and trims whitespace.
func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if idx := strings.Index(text, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		text = text[idx+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
