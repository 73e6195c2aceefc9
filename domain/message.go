// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Only the read flag of a Message changes after creation.
package domain

import (
	"fmt"
	"market-chat/errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Body is either a text or a reference to an uploaded audio clip, never both.
type Body struct {
	Text     string
	AudioRef string
}

func (b Body) IsAudio() bool { return b.AudioRef != "" }

// Preview is the human readable form used by out-of-band notifications.
func (b Body) Preview() string {
	if b.IsAudio() {
		return "[audio message]"
	}
	return b.Text
}

// Validate enforces exactly one payload and the maximum text length (in runes).
func (b Body) Validate(maxContentLength int) error {
	switch {
	case b.Text == "" && b.AudioRef == "":
		return fmt.Errorf("%w: empty body", errors.ErrInvalidMessage)
	case b.Text != "" && b.AudioRef != "":
		return fmt.Errorf("%w: body carries both text and audio", errors.ErrInvalidMessage)
	case maxContentLength > 0 && utf8.RuneCountInString(b.Text) > maxContentLength:
		return fmt.Errorf("%w: text exceeds %d characters", errors.ErrInvalidMessage, maxContentLength)
	}
	return nil
}

// Message represents a chat message between two participants.
type Message struct {
	ID           uuid.UUID
	Conversation ConversationKey
	Sender       ParticipantID
	Receiver     ParticipantID
	Body         Body
	Lang         string
	CreatedAt    time.Time
	Read         bool
	ReadAt       time.Time
}
