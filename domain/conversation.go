package domain

import (
	"fmt"
	"market-chat/errors"
	"strings"
)

const keySeparator = "|"

// ConversationKey identifies the room shared by exactly two participants.
// It is always recomputed from the pair and never stored as an entity.
type ConversationKey string

// Resolve derives the canonical key of the conversation between a and b.
// Resolve(a, b) == Resolve(b, a) for every valid pair.
func Resolve(a, b ParticipantID) (ConversationKey, error) {
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := b.Validate(); err != nil {
		return "", err
	}
	if b < a {
		a, b = b, a
	}
	return ConversationKey(string(a) + keySeparator + string(b)), nil
}

func (k ConversationKey) String() string { return string(k) }

// Participants splits the key back into its sorted pair.
func (k ConversationKey) Participants() (ParticipantID, ParticipantID, error) {
	first, second, ok := strings.Cut(string(k), keySeparator)
	if !ok {
		return "", "", fmt.Errorf("%w: malformed conversation key %q", errors.ErrInvalidParticipant, string(k))
	}
	return ParticipantID(first), ParticipantID(second), nil
}

// Includes reports whether p is one of the two participants.
func (k ConversationKey) Includes(p ParticipantID) bool {
	a, b, err := k.Participants()
	if err != nil {
		return false
	}
	return p == a || p == b
}

// Peer returns the other participant of the conversation.
func (k ConversationKey) Peer(self ParticipantID) (ParticipantID, error) {
	a, b, err := k.Participants()
	if err != nil {
		return "", err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %s is not part of %s", errors.ErrForbidden, self, k)
	}
}
