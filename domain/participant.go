// Package domain contains core concepts of the chat system.
// This file defines Participant entities and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"market-chat/errors"
)

const maxParticipantLength = 128

// ParticipantID is the stable identity of a marketplace user.
// The alphabet is restricted so that a ConversationKey and the storage
// prefixes derived from it can never be ambiguous.
type ParticipantID string

func (p ParticipantID) String() string { return string(p) }

// Validate rejects empty, oversized or malformed identifiers.
func (p ParticipantID) Validate() error {
	if p == "" {
		return fmt.Errorf("%w: empty identifier", errors.ErrInvalidParticipant)
	}
	if len(p) > maxParticipantLength {
		return fmt.Errorf("%w: identifier longer than %d bytes", errors.ErrInvalidParticipant, maxParticipantLength)
	}
	for _, r := range string(p) {
		if !isIdentifierRune(r) {
			return fmt.Errorf("%w: forbidden character %q in %q", errors.ErrInvalidParticipant, r, string(p))
		}
	}
	return nil
}

func isIdentifierRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '_', r == '@', r == '+', r == '-':
		return true
	default:
		return false
	}
}
