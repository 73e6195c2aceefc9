package runtime

import (
	"context"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// fakeConnection records what a session would have written to its client.
type fakeConnection struct {
	id          string
	participant domain.ParticipantID
	failing     bool
	blocking    bool

	mu        sync.Mutex
	events    []event.DomainEvent
	rooms     map[domain.ConversationKey]struct{}
	callbacks []func()
	closed    bool
}

func newFakeConnection(p domain.ParticipantID) *fakeConnection {
	return &fakeConnection{
		id:          uuid.NewString(),
		participant: p,
		rooms:       make(map[domain.ConversationKey]struct{}),
	}
}

func (f *fakeConnection) ID() string                        { return f.id }
func (f *fakeConnection) Participant() domain.ParticipantID { return f.participant }

func (f *fakeConnection) Send(ctx context.Context, e event.DomainEvent) error {
	if f.blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.closed {
		return errors.ErrConnectionClosed
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeConnection) OnDisconnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, fn)
}

func (f *fakeConnection) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	callbacks := f.callbacks
	f.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return nil
}

func (f *fakeConnection) Track(key domain.ConversationKey) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[key]; ok {
		return false
	}
	f.rooms[key] = struct{}{}
	return true
}

func (f *fakeConnection) Untrack(key domain.ConversationKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, key)
}

func (f *fakeConnection) Rooms() []domain.ConversationKey {
	f.mu.Lock()
	defer f.mu.Unlock()
	return lo.Keys(f.rooms)
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConnection) received() []event.DomainEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.DomainEvent(nil), f.events...)
}

func (f *fakeConnection) messages() []event.MessageSent {
	return receivedOf[event.MessageSent](f)
}

func receivedOf[T event.DomainEvent](f *fakeConnection) []T {
	var res []T
	for _, e := range f.received() {
		if typed, ok := e.(T); ok {
			res = append(res, typed)
		}
	}
	return res
}
