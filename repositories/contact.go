//go:generate go run go.uber.org/mock/mockgen -source=contact.go -destination=../mocks/mock_contact_repository.go -package=mocks
package repositories

import (
	stderrors "errors"
	"fmt"
	"market-chat/domain"
	"market-chat/errors"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// IContactRepository resolves the address used for offline notifications.
type IContactRepository interface {
	PutContact(participant domain.ParticipantID, email string) error
	GetContact(participant domain.ParticipantID) (string, error)
}

type ContactRepository struct {
	db *badger.DB
}

func NewContactRepository(db *badger.DB) ContactRepository {
	return ContactRepository{db: db}
}

type diskContact struct {
	Email     string `cbor:"email"`
	UpdatedAt int64  `cbor:"updated_at"`
}

// PutContact creates or replaces the notification address of a participant.
func (c ContactRepository) PutContact(participant domain.ParticipantID, email string) error {
	data, err := marshal(diskContact{Email: email, UpdatedAt: time.Now().Unix()})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(contactKey(participant), data)
	})
}

// GetContact returns ErrNotFound for participants that never registered an address.
func (c ContactRepository) GetContact(participant domain.ParticipantID) (string, error) {
	var contact diskContact
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contactKey(participant))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return unmarshal(val, &contact)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: no contact for %s", errors.ErrNotFound, participant)
	}
	if err != nil {
		return "", err
	}
	return contact.Email, nil
}

func contactKey(participant domain.ParticipantID) []byte {
	return []byte("contact:" + string(participant))
}
