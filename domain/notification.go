package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the out-of-band notice sent when a receiver could not be
// reached live.
type Notification struct {
	MessageID uuid.UUID
	From      ParticipantID
	To        ParticipantID
	Preview   string
	CreatedAt time.Time
}

func NewNotification(m Message) Notification {
	return Notification{
		MessageID: m.ID,
		From:      m.Sender,
		To:        m.Receiver,
		Preview:   m.Body.Preview(),
		CreatedAt: m.CreatedAt,
	}
}
