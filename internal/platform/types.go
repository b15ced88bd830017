// Package platform provides a unified abstraction for chat platforms that
// deliver webhook updates. It defines the platform-agnostic update
// envelope, the adapter/collaborator interfaces, and a registry of
// adapters such as Telegram and LINE.
package platform

import "strings"

// Type identifies a chat platform (e.g., "telegram", "line").
type Type string

// String returns the platform type as a plain string.
func (t Type) String() string {
	return string(t)
}

// PayloadKind discriminates the content of an inbound update.
type PayloadKind string

const (
	// PayloadCommand is a bot command such as "/start".
	PayloadCommand PayloadKind = "command"
	// PayloadPhoto is a photographed business card.
	PayloadPhoto PayloadKind = "photo"
	// PayloadText is plain text that is not a command.
	PayloadText PayloadKind = "text"
	// PayloadUnrecognized covers update shapes the pipeline does not
	// process (stickers, edits, joins, ...). They are acknowledged and
	// dropped.
	PayloadUnrecognized PayloadKind = "unrecognized"
)

// Payload is the variant part of an Update. Kind selects which fields are
// meaningful: Text for commands and plain text, the file fields for photos.
type Payload struct {
	Kind      PayloadKind
	Text      string
	FileID    string
	Width     int
	Height    int
	SizeBytes int64
}

// Update is one platform-agnostic inbound event. It is constructed by a
// platform adapter at the webhook boundary and never mutated afterwards.
// UpdateID is unique per platform stream and keys duplicate suppression.
type Update struct {
	Platform       Type
	UpdateID       string
	ConversationID string
	SenderID       string
	Payload        Payload
}

// DedupKey returns the identifier used to suppress platform retries of the
// same update.
func (u Update) DedupKey() string {
	return strings.Join([]string{u.Platform.String(), u.UpdateID}, ":")
}
