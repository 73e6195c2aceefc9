package websocket

import (
	"encoding/json"
	"fmt"
	"market-chat/domain/event"
	"market-chat/errors"
	"time"
)

// Inbound frame types.
const (
	JoinRoomType    = "joinRoom"
	SendMessageType = "sendMessage"
	TypingType      = "typing"
	MarkAsReadType  = "markAsRead"
)

// Envelope is the JSON frame exchanged in both directions.
type Envelope struct {
	Type      string          `json:"type" validate:"required"`
	RequestID string          `json:"requestId,omitempty" validate:"max=64"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// The identity of the issuer always comes from the session token. Requests
// may still name it (participantA, sender) and are refused when it differs.

type JoinRoomRequest struct {
	ParticipantA string `json:"participantA,omitempty"`
	Peer         string `json:"peer" validate:"required"`
}

type SendMessageRequest struct {
	Sender   string `json:"sender,omitempty"`
	To       string `json:"to" validate:"required"`
	Text     string `json:"text,omitempty"`
	AudioRef string `json:"audioRef,omitempty" validate:"max=512"`
}

type TypingRequest struct {
	Sender string `json:"sender,omitempty"`
	To     string `json:"to" validate:"required"`
}

type MarkAsReadRequest struct {
	MessageID string `json:"messageId" validate:"required"`
}

type messagePayload struct {
	ID           string    `json:"id"`
	Conversation string    `json:"conversation"`
	Sender       string    `json:"sender"`
	Receiver     string    `json:"receiver"`
	Text         string    `json:"text,omitempty"`
	AudioRef     string    `json:"audioRef,omitempty"`
	Lang         string    `json:"lang,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

type typingPayload struct {
	Conversation string    `json:"conversation"`
	Sender       string    `json:"sender"`
	At           time.Time `json:"at"`
}

type readPayload struct {
	Conversation string    `json:"conversation"`
	MessageID    string    `json:"messageId"`
	Reader       string    `json:"reader"`
	At           time.Time `json:"at"`
}

type presencePayload struct {
	Conversation string    `json:"conversation"`
	Participant  string    `json:"participant"`
	Online       bool      `json:"online"`
	At           time.Time `json:"at"`
}

type ackPayload struct {
	MessageID string    `json:"messageId"`
	CreatedAt time.Time `json:"createdAt"`
}

type joinedPayload struct {
	Conversation string `json:"conversation"`
	Peer         string `json:"peer"`
	PeerOnline   bool   `json:"peerOnline"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode turns an outbound event into its frame.
func Encode(e event.DomainEvent) (Envelope, error) {
	var (
		requestID string
		data      any
	)
	switch evt := e.(type) {
	case event.MessageSent:
		data = messagePayload{
			ID:           evt.ID.String(),
			Conversation: evt.Room.String(),
			Sender:       evt.Sender.String(),
			Receiver:     evt.Receiver.String(),
			Text:         evt.Text,
			AudioRef:     evt.AudioRef,
			Lang:         evt.Lang,
			CreatedAt:    evt.CreatedAt,
		}
	case event.Typing:
		data = typingPayload{Conversation: evt.Room.String(), Sender: evt.Sender.String(), At: evt.At}
	case event.MessageRead:
		data = readPayload{
			Conversation: evt.Room.String(),
			MessageID:    evt.MessageID.String(),
			Reader:       evt.Reader.String(),
			At:           evt.At,
		}
	case event.PresenceChanged:
		data = presencePayload{
			Conversation: evt.Room.String(),
			Participant:  evt.Participant.String(),
			Online:       evt.Online,
			At:           evt.At,
		}
	case event.Ack:
		requestID = evt.RequestID
		data = ackPayload{MessageID: evt.MessageID.String(), CreatedAt: evt.CreatedAt}
	case event.Joined:
		requestID = evt.RequestID
		data = joinedPayload{Conversation: evt.Room.String(), Peer: evt.Peer.String(), PeerOnline: evt.PeerOnline}
	case event.Failure:
		requestID = evt.RequestID
		data = errorPayload{Code: evt.Code, Message: evt.Message}
	default:
		return Envelope{}, fmt.Errorf("%w: %T", errors.ErrUnknownEvent, e)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: string(e.Type()), RequestID: requestID, Data: raw}, nil
}

// DecodeEnvelope parses one inbound frame. Frames that are not a JSON
// envelope are rejected with ErrInvalidMessage and leave the session open.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: malformed frame: %v", errors.ErrInvalidMessage, err)
	}
	return env, nil
}

// Decode reads a typed payload out of an inbound frame.
func Decode[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%w: %s frame without data", errors.ErrInvalidRequest, env.Type)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return payload, nil
}
