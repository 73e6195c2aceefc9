//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/domain"
	"market-chat/errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

const maxConflictRetries = 5

type IMessageRepository interface {
	Append(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	SetRead(id uuid.UUID, at time.Time) (domain.Message, bool, error)
	ListBetween(key domain.ConversationKey, cursor *string) ([]domain.Message, *string, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository pages conversations by limitMessages. A nil or
// non-positive limit returns whole conversations in one page.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	if limitMessages != nil && *limitMessages <= 0 {
		limitMessages = nil
	}
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID           string `cbor:"id"`
	Conversation string `cbor:"conversation"`
	Sender       string `cbor:"sender"`
	Receiver     string `cbor:"receiver"`
	Text         string `cbor:"text,omitempty"`
	AudioRef     string `cbor:"audio_ref,omitempty"`
	Lang         string `cbor:"lang,omitempty"`
	At           int64  `cbor:"at"`
	Read         bool   `cbor:"read"`
	ReadAt       int64  `cbor:"read_at,omitempty"`
}

// Append persists a message in BadgerDB.
// The key is formatted as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
//
// A secondary "msgid:{uuid}" entry points at the primary key for lookups by id.
// Both keys are written in the same transaction.
func (m MessageRepository) Append(message domain.Message) error {
	key := messageKey(message)
	bytes, err := marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(idKey(message.ID), key)
	})
}

// Get loads a message by id, ErrNotFound when absent.
func (m MessageRepository) Get(id uuid.UUID) (domain.Message, error) {
	var message domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		_, msg, err := m.load(txn, id)
		message = msg
		return err
	})
	return message, err
}

// SetRead flips the read flag once. The boolean is false when the message was
// already read, so concurrent receipts for the same id change state only once.
// Badger conflicts between such concurrent receipts are retried.
func (m MessageRepository) SetRead(id uuid.UUID, at time.Time) (domain.Message, bool, error) {
	var (
		message domain.Message
		changed bool
	)
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = m.db.Update(func(txn *badger.Txn) error {
			key, msg, err := m.load(txn, id)
			if err != nil {
				return err
			}
			if msg.Read {
				message, changed = msg, false
				return nil
			}
			msg.Read = true
			msg.ReadAt = at.UTC()
			bytes, err := marshal(fromMessage(msg))
			if err != nil {
				return err
			}
			message, changed = msg, true
			return txn.Set(key, bytes)
		})
		if !stderrors.Is(err, badger.ErrConflict) {
			break
		}
		m.log.Debug("Read receipt conflict, retrying", "message_id", id, "attempt", attempt+1)
	}
	if err != nil {
		return domain.Message{}, false, err
	}
	return message, changed, nil
}

// ListBetween retrieves one page of a conversation using a prefix scan.
// Pages are walked from the newest message backwards, the returned slice is
// chronological. The cursor is nil once the oldest message has been returned.
func (m MessageRepository) ListBetween(conversation domain.ConversationKey, cursor *string) ([]domain.Message, *string, error) {
	var byteMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", conversation)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Start past the newest possible timestamp and walk back
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		default:
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) && string(it.Item().Key()[prefixLen:]) == *cursor {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(byteMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			byteMessages = append(byteMessages, value)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(byteMessages))
	for _, b := range byteMessages {
		var disk DiskMessage
		if err = unmarshal(b, &disk); err != nil {
			return nil, nil, err
		}
		message, err := toMessage(disk)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, message)
	}

	var next *string
	if m.limitMessages != nil && len(messages) > 0 && len(messages) == *m.limitMessages {
		next = lo.ToPtr(lastKey)
	}
	slices.Reverse(messages)
	return messages, next, nil
}

func (m MessageRepository) load(txn *badger.Txn, id uuid.UUID) ([]byte, domain.Message, error) {
	item, err := txn.Get(idKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, domain.Message{}, err
	}
	item, err = txn.Get(key)
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.Message{}, fmt.Errorf("%w: dangling index for message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return nil, domain.Message{}, err
	}
	var disk DiskMessage
	if err := item.Value(func(val []byte) error {
		return unmarshal(val, &disk)
	}); err != nil {
		return nil, domain.Message{}, err
	}
	message, err := toMessage(disk)
	return key, message, err
}

func messageKey(message domain.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		message.Conversation,
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func idKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func fromMessage(message domain.Message) DiskMessage {
	disk := DiskMessage{
		ID:           message.ID.String(),
		Conversation: string(message.Conversation),
		Sender:       string(message.Sender),
		Receiver:     string(message.Receiver),
		Text:         message.Body.Text,
		AudioRef:     message.Body.AudioRef,
		Lang:         message.Lang,
		At:           message.CreatedAt.UnixNano(),
		Read:         message.Read,
	}
	if message.Read {
		disk.ReadAt = message.ReadAt.UnixNano()
	}
	return disk
}

func toMessage(disk DiskMessage) (domain.Message, error) {
	parsedID, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:           parsedID,
		Conversation: domain.ConversationKey(disk.Conversation),
		Sender:       domain.ParticipantID(disk.Sender),
		Receiver:     domain.ParticipantID(disk.Receiver),
		Body:         domain.Body{Text: disk.Text, AudioRef: disk.AudioRef},
		Lang:         disk.Lang,
		CreatedAt:    time.Unix(0, disk.At).UTC(),
		Read:         disk.Read,
	}
	if disk.Read {
		message.ReadAt = time.Unix(0, disk.ReadAt).UTC()
	}
	return message, nil
}
