// Package identity provides conversation session identity primitives.
//
// A session identity is a UUID v4 string. It is generated when the widget
// first opens and regenerated on every "new chat" command; the backend uses
// it to group the turns of one conversation.
package identity

import (
	"regexp"

	"github.com/google/uuid"
)

var sessionIDPattern = regexp.MustCompile(
	`^[a-f0-9]{8}-[a-f0-9]{4}-4[a-f0-9]{3}-[89ab][a-f0-9]{3}-[a-f0-9]{12}$`)

// NewSessionID returns a fresh session identity.
func NewSessionID() string {
	return uuid.NewString()
}

// NewTurnID returns an identifier for a single request/response turn.
func NewTurnID() string {
	return uuid.NewString()
}

// NewMessageID returns an identifier for a single chat message.
func NewMessageID() string {
	return uuid.NewString()
}

// IsValidSessionID reports whether id is a well-formed session identity:
// 36 characters, version nibble 4, variant nibble in {8,9,a,b}.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}
