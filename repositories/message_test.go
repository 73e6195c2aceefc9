package repositories

import (
	"log/slog"
	"market-chat/domain"
	"market-chat/errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func openDB(t *testing.T) *badger.DB {
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newMessage(key domain.ConversationKey, sender, receiver domain.ParticipantID, text string, at time.Time) domain.Message {
	return domain.Message{
		ID:           uuid.New(),
		Conversation: key,
		Sender:       sender,
		Receiver:     receiver,
		Body:         domain.Body{Text: text},
		CreatedAt:    at,
	}
}

func Test_Append_And_Get_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	key, err := domain.Resolve("alice", "bob")
	req.NoError(err)
	message := newMessage(key, "alice", "bob", "is the bike still for sale?", time.Now().UTC())
	message.Lang = "en"

	// When a message is appended
	req.NoError(repository.Append(message))

	// Then it can be loaded back by id, unread
	fetched, err := repository.Get(message.ID)
	req.NoError(err)
	req.Equal(message, fetched)
	req.False(fetched.Read)
}

func Test_Get_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)

	_, err := repository.Get(uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)

	_, _, err = repository.SetRead(uuid.New(), time.Now())
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_SetRead_Flips_Once(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	key, _ := domain.Resolve("alice", "bob")
	message := newMessage(key, "alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Append(message))
	readAt := time.Now().UTC()

	// When the message is marked as read twice
	first, changed, err := repository.SetRead(message.ID, readAt)
	req.NoError(err)
	req.True(changed)
	req.True(first.Read)
	req.Equal(readAt, first.ReadAt)

	second, changed, err := repository.SetRead(message.ID, readAt.Add(time.Minute))
	req.NoError(err)

	// Then only the first call changed the state
	req.False(changed)
	req.True(second.Read)
	req.Equal(readAt, second.ReadAt)
}

func Test_SetRead_Concurrent_Changes_Once(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	key, _ := domain.Resolve("alice", "bob")
	message := newMessage(key, "alice", "bob", "hello", time.Now().UTC())
	req.NoError(repository.Append(message))

	var wg sync.WaitGroup
	var mu sync.Mutex
	changes := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, changed, err := repository.SetRead(message.ID, time.Now())
			if err == nil && changed {
				mu.Lock()
				changes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	req.Equal(1, changes)
}

func Test_ListBetween_Is_Chronological_And_Isolated(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), nil)
	key, _ := domain.Resolve("alice", "bob")
	other, _ := domain.Resolve("alice", "bobby")
	at := time.Now().UTC()
	messages := []domain.Message{
		newMessage(key, "alice", "bob", "first", at),
		newMessage(key, "bob", "alice", "second", at.Add(1*time.Minute)),
		newMessage(key, "alice", "bob", "third", at.Add(2*time.Minute)),
	}
	// Given messages stored out of order and a neighbour conversation
	for _, m := range []domain.Message{messages[2], messages[0], messages[1]} {
		req.NoError(repository.Append(m))
	}
	req.NoError(repository.Append(newMessage(other, "alice", "bobby", "noise", at)))

	// When listing the conversation
	fetched, cursor, err := repository.ListBetween(key, nil)
	req.NoError(err)

	// Then only its messages are returned, oldest first
	req.Nil(cursor)
	req.Equal(messages, fetched)
}

func Test_ListBetween_Pagination(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openDB(t), slog.Default(), &limit)
	key, _ := domain.Resolve("alice", "bob")
	at := time.Now().UTC()
	var messages []domain.Message
	for i := 0; i < 5; i++ {
		m := newMessage(key, "alice", "bob", "hello", at.Add(time.Duration(i)*time.Second))
		messages = append(messages, m)
		req.NoError(repository.Append(m))
	}

	// When walking the pages from the newest one
	page1, cursor, err := repository.ListBetween(key, nil)
	req.NoError(err)
	req.NotNil(cursor)
	page2, cursor, err := repository.ListBetween(key, cursor)
	req.NoError(err)
	req.NotNil(cursor)
	page3, cursor, err := repository.ListBetween(key, cursor)
	req.NoError(err)

	// Then every page is chronological and pages go back in time
	req.Equal(messages[3:5], page1)
	req.Equal(messages[1:3], page2)
	req.Equal(messages[0:1], page3)
	req.Nil(cursor)
	req.Equal(lo.Map(messages, func(m domain.Message, _ int) uuid.UUID { return m.ID }),
		lo.Map(append(append(page3, page2...), page1...), func(m domain.Message, _ int) uuid.UUID { return m.ID }))
}

func Test_ListBetween_Without_Positive_Limit_Ends(t *testing.T) {
	for _, limit := range []int{0, -1} {
		req := require.New(t)
		repository := NewMessageRepository(openDB(t), slog.Default(), lo.ToPtr(limit))
		key, _ := domain.Resolve("alice", "bob")
		at := time.Now().UTC()
		for i := 0; i < 3; i++ {
			req.NoError(repository.Append(newMessage(key, "alice", "bob", "hello", at.Add(time.Duration(i)*time.Second))))
		}

		// When the limit is not positive, the whole conversation is one page
		page, cursor, err := repository.ListBetween(key, nil)
		req.NoError(err)
		req.Len(page, 3, limit)
		req.Nil(cursor, limit)
	}
}

func Test_ListBetween_Empty_Conversation_Has_No_Cursor(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openDB(t), slog.Default(), lo.ToPtr(2))
	key, _ := domain.Resolve("alice", "bob")

	page, cursor, err := repository.ListBetween(key, nil)
	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}
