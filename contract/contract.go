//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"market-chat/domain"
	"market-chat/domain/event"
	"reflect"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink consumes domain events for side effects (search index, metrics).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is one live duplex channel bound to one authenticated participant.
// Send must honour ctx so that a slow client never stalls a room broadcast.
type Connection interface {
	ID() string
	Participant() domain.ParticipantID
	Send(ctx context.Context, e event.DomainEvent) error
	OnDisconnect(fn func())
	Close() error
	// Track records a joined room on the handle, false if it was already there.
	Track(key domain.ConversationKey) bool
	Untrack(key domain.ConversationKey)
	Rooms() []domain.ConversationKey
}

type IPresenceRegistry interface {
	Register(p domain.ParticipantID, c Connection) bool
	Unregister(p domain.ParticipantID, c Connection) bool
	HandlesFor(p domain.ParticipantID) []Connection
	IsOnline(p domain.ParticipantID) bool
}

// Delivery is the outcome of one room broadcast.
type Delivery struct {
	Reached map[domain.ParticipantID]int
	Failed  int
}

// ReachedParticipant reports whether at least one handle of p got the event.
func (d Delivery) ReachedParticipant(p domain.ParticipantID) bool {
	return d.Reached[p] > 0
}

type IRoomRouter interface {
	Join(key domain.ConversationKey, c Connection) bool
	Leave(key domain.ConversationKey, c Connection)
	Broadcast(ctx context.Context, key domain.ConversationKey, e event.RoomEvent) Delivery
	Members(key domain.ConversationKey) []Connection
}

// IModerator rewrites message text before it is persisted and tags its language.
type IModerator interface {
	Moderate(text string) (censored string, lang string)
}

// IMessageIndex answers full-text queries scoped to one conversation,
// newest matches first.
type IMessageIndex interface {
	Search(ctx context.Context, key domain.ConversationKey, terms string, limit int) ([]uuid.UUID, error)
}

// INotifier is the out-of-band notification gateway (email).
type INotifier interface {
	Notify(ctx context.Context, address string, n domain.Notification) error
}

// IVerifier turns a bearer credential into a verified participant identity.
type IVerifier interface {
	Verify(token string) (domain.ParticipantID, error)
}

type ICoordinator interface {
	HandleConnect(c Connection)
	HandleDisconnect(c Connection)
	HandleJoinRoom(ctx context.Context, cmd domain.JoinRoomCommand, c Connection) (domain.ConversationKey, error)
	HandleSend(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	HandleTyping(ctx context.Context, cmd domain.TypingCommand) error
	HandleMarkRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Message, error)
	History(ctx context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error)
	Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error)
	IsOnline(p domain.ParticipantID) bool
}
