package main

import (
	"bytes"
	"log/slog"
	"market-chat/auth"
	"market-chat/domain"
	"market-chat/repositories"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestConversationOf(t *testing.T) {
	req := require.New(t)

	key, ok := conversationOf("msg:alice|bob:0000001700000000000:" + uuid.NewString())
	req.True(ok)
	req.Equal("alice|bob", key)

	_, ok = conversationOf("msgid:" + uuid.NewString())
	req.False(ok)
}

func TestRun_Token(t *testing.T) {
	req := require.New(t)
	t.Setenv("JWT_SECRET", "inspect_test_secret")
	var out bytes.Buffer

	req.NoError(run([]string{"--token", "alice", "--ttl", "5m"}, &out))

	participant, err := auth.NewVerifier("inspect_test_secret").Verify(string(bytes.TrimSpace(out.Bytes())))
	req.NoError(err)
	req.Equal(domain.ParticipantID("alice"), participant)
}

func TestRun_Conversation_And_Summary(t *testing.T) {
	req := require.New(t)
	dir := t.TempDir()
	t.Setenv("INSPECT_COLOURS", "false")

	// Given a database holding one message
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	repository := repositories.NewMessageRepository(db, logs.GetLoggerFromLevel(slog.LevelWarn), nil)
	req.NoError(repository.Append(domain.Message{
		ID:           uuid.New(),
		Conversation: "alice|bob",
		Sender:       "alice",
		Receiver:     "bob",
		Body:         domain.Body{Text: "is the bike still available?"},
		CreatedAt:    time.Now().UTC(),
	}))
	req.NoError(db.Close())

	// When listing the conversation and the summary
	var conversation, summary bytes.Buffer
	req.NoError(run([]string{"--db", dir, "-p", "bob", "--peer", "alice"}, &conversation))
	req.NoError(run([]string{"--db", dir}, &summary))

	// Then both show the stored message
	req.Contains(conversation.String(), "is the bike still available?")
	req.Contains(summary.String(), "alice|bob")
}
