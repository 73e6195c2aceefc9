package websocket

import (
	"encoding/json"
	"market-chat/domain/event"
	"market-chat/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncode_Message(t *testing.T) {
	req := require.New(t)
	id := uuid.New()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	env, err := Encode(event.MessageSent{ID: id, Room: "alice|bob", Sender: "alice", Receiver: "bob", Text: "hi", CreatedAt: at})

	req.NoError(err)
	req.Equal("message", env.Type)
	req.Empty(env.RequestID)
	req.JSONEq(`{"id":"`+id.String()+`","conversation":"alice|bob","sender":"alice","receiver":"bob","text":"hi","createdAt":"2024-05-01T12:00:00Z"}`, string(env.Data))
}

func TestEncode_Replies_Carry_RequestID(t *testing.T) {
	req := require.New(t)

	env, err := Encode(event.Failure{RequestID: "r-1", Code: "not_found", Message: "not found"})
	req.NoError(err)
	req.Equal("error", env.Type)
	req.Equal("r-1", env.RequestID)

	raw, err := json.Marshal(env)
	req.NoError(err)
	req.JSONEq(`{"type":"error","requestId":"r-1","data":{"code":"not_found","message":"not found"}}`, string(raw))
}

func TestDecode(t *testing.T) {
	req := require.New(t)

	payload, err := Decode[SendMessageRequest](Envelope{Type: SendMessageType, Data: json.RawMessage(`{"to":"bob","text":"hi"}`)})
	req.NoError(err)
	req.Equal(SendMessageRequest{To: "bob", Text: "hi"}, payload)

	_, err = Decode[SendMessageRequest](Envelope{Type: SendMessageType})
	req.ErrorIs(err, errors.ErrInvalidRequest)

	_, err = Decode[SendMessageRequest](Envelope{Type: SendMessageType, Data: json.RawMessage(`{"to":1}`)})
	req.ErrorIs(err, errors.ErrInvalidRequest)
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Envelope
		err   error
	}{
		{
			name:  "envelope",
			frame: `{"type":"typing","requestId":"7","data":{"to":"bob"}}`,
			want:  Envelope{Type: TypingType, RequestID: "7", Data: json.RawMessage(`{"to":"bob"}`)},
		},
		{name: "not json", frame: `not json`, err: errors.ErrInvalidMessage},
		{name: "type is a number", frame: `{"type":5,"data":{}}`, err: errors.ErrInvalidMessage},
		{name: "truncated", frame: `{"type":"typing"`, err: errors.ErrInvalidMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			env, err := DecodeEnvelope([]byte(tt.frame))
			if tt.err != nil {
				req.ErrorIs(err, tt.err)
				return
			}
			req.NoError(err)
			req.Equal(tt.want, env)
		})
	}
}
