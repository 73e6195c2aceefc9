package event

import (
	"market-chat/domain"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	MessageType         Type = "message"
	TypingType          Type = "typing"
	ReadType            Type = "read"
	PresenceChangedType Type = "presenceChanged"
	AckType             Type = "ack"
	JoinedType          Type = "joined"
	FailureType         Type = "error"
)

// DomainEvent is anything a connection session can push to its client.
type DomainEvent interface {
	Type() Type
}

// RoomEvent is a DomainEvent scoped to one conversation room.
type RoomEvent interface {
	DomainEvent
	Conversation() domain.ConversationKey
}

type MessageSent struct {
	ID        uuid.UUID
	Room      domain.ConversationKey
	Sender    domain.ParticipantID
	Receiver  domain.ParticipantID
	Text      string
	AudioRef  string
	Lang      string
	CreatedAt time.Time
}

func (MessageSent) Type() Type { return MessageType }
func (m MessageSent) Conversation() domain.ConversationKey { return m.Room }

type Typing struct {
	Room   domain.ConversationKey
	Sender domain.ParticipantID
	At     time.Time
}

func (Typing) Type() Type { return TypingType }
func (t Typing) Conversation() domain.ConversationKey { return t.Room }

type MessageRead struct {
	Room      domain.ConversationKey
	MessageID uuid.UUID
	Reader    domain.ParticipantID
	At        time.Time
}

func (MessageRead) Type() Type { return ReadType }
func (m MessageRead) Conversation() domain.ConversationKey { return m.Room }

type PresenceChanged struct {
	Room        domain.ConversationKey
	Participant domain.ParticipantID
	Online      bool
	At          time.Time
}

func (PresenceChanged) Type() Type { return PresenceChangedType }
func (p PresenceChanged) Conversation() domain.ConversationKey { return p.Room }

// Ack confirms a sendMessage to the issuing session only.
type Ack struct {
	RequestID string
	MessageID uuid.UUID
	CreatedAt time.Time
}

func (Ack) Type() Type { return AckType }

type Joined struct {
	RequestID  string
	Room       domain.ConversationKey
	Peer       domain.ParticipantID
	PeerOnline bool
}

func (Joined) Type() Type { return JoinedType }

// Failure reports a rejected client operation to the issuing session.
type Failure struct {
	RequestID string
	Code      string
	Message   string
}

func (Failure) Type() Type { return FailureType }

// FromMessage builds the room event announcing a persisted message.
func FromMessage(m domain.Message) MessageSent {
	return MessageSent{
		ID:        m.ID,
		Room:      m.Conversation,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Text:      m.Body.Text,
		AudioRef:  m.Body.AudioRef,
		Lang:      m.Lang,
		CreatedAt: m.CreatedAt,
	}
}
