package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/observability"
	"market-chat/repositories"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	presenceTimeout    = 2 * time.Second
)

// NotifyPolicy decides when a message also produces an offline notification.
type NotifyPolicy string

const (
	// NotifySubscription notifies when no handle of the receiver got the
	// message live, which includes a receiver online in another room.
	NotifySubscription NotifyPolicy = "subscription"
	// NotifyConnectivity notifies only when the receiver has no live handle at all.
	NotifyConnectivity NotifyPolicy = "connectivity"
)

func ParseNotifyPolicy(s string) (NotifyPolicy, error) {
	switch NotifyPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", NotifySubscription:
		return NotifySubscription, nil
	case NotifyConnectivity:
		return NotifyConnectivity, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q", s)
	}
}

// Coordinator ties a message send to persistence, live fan-out and the
// offline notification decision. Every operation is safe for concurrent use.
type Coordinator struct {
	log              *slog.Logger
	messages         repositories.IMessageRepository
	presence         contract.IPresenceRegistry
	router           contract.IRoomRouter
	moderator        contract.IModerator
	index            contract.IMessageIndex
	notifications    chan<- domain.Notification
	domainEvents     chan<- event.DomainEvent
	sequencer        *sequencer
	policy           NotifyPolicy
	maxContentLength int
	metrics          *observability.Metrics
	clock            *monotonicClock
	now              func() time.Time
}

var _ contract.ICoordinator = (*Coordinator)(nil)

func NewCoordinator(log *slog.Logger,
	messages repositories.IMessageRepository,
	presence contract.IPresenceRegistry,
	router contract.IRoomRouter,
	notifications chan<- domain.Notification,
	domainEvents chan<- event.DomainEvent,
	policy NotifyPolicy, maxContentLength int,
	metrics *observability.Metrics) *Coordinator {
	return &Coordinator{
		log:              log,
		messages:         messages,
		presence:         presence,
		router:           router,
		notifications:    notifications,
		domainEvents:     domainEvents,
		sequencer:        newSequencer(DefaultShards),
		policy:           policy,
		maxContentLength: maxContentLength,
		metrics:          metrics,
		clock:            newMonotonicClock(time.Now),
		now:              time.Now,
	}
}

func (c *Coordinator) WithModerator(moderator contract.IModerator) *Coordinator {
	c.moderator = moderator
	return c
}

func (c *Coordinator) WithIndex(index contract.IMessageIndex) *Coordinator {
	c.index = index
	return c
}

// HandleConnect registers a freshly authenticated handle.
func (c *Coordinator) HandleConnect(conn contract.Connection) {
	if c.presence.Register(conn.Participant(), conn) {
		c.log.Info("Participant online", "participant", conn.Participant())
	}
	c.metrics.SessionOpened()
}

// HandleDisconnect removes the handle from every room and from presence,
// in that order, and tells the remaining subscribers when the participant
// went offline. Connections run it once, from their disconnect callback.
func (c *Coordinator) HandleDisconnect(conn contract.Connection) {
	p := conn.Participant()
	rooms := conn.Rooms()
	for _, key := range rooms {
		c.router.Leave(key, conn)
		conn.Untrack(key)
	}
	c.metrics.SessionClosed()
	if !c.presence.Unregister(p, conn) {
		return
	}
	c.log.Info("Participant offline", "participant", p, "rooms", len(rooms))

	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()
	at := c.now().UTC()
	for _, key := range rooms {
		c.router.Broadcast(ctx, key, event.PresenceChanged{Room: key, Participant: p, Online: false, At: at})
	}
}

// HandleJoinRoom subscribes the handle to the conversation between its own
// participant and the peer named in the command.
func (c *Coordinator) HandleJoinRoom(ctx context.Context, cmd domain.JoinRoomCommand, conn contract.Connection) (domain.ConversationKey, error) {
	key, err := domain.Resolve(cmd.ParticipantA, cmd.ParticipantB)
	if err != nil {
		return "", err
	}
	if !key.Includes(conn.Participant()) {
		return "", fmt.Errorf("%w: %s is not part of %s", errors.ErrForbidden, conn.Participant(), key)
	}

	conn.Track(key)
	if !c.router.Join(key, conn) {
		return key, nil
	}
	c.log.Debug("Handle joined room", "conversation", key, "connection_id", conn.ID())
	c.router.Broadcast(context.WithoutCancel(ctx), key, event.PresenceChanged{
		Room:        key,
		Participant: conn.Participant(),
		Online:      true,
		At:          c.now().UTC(),
	})
	return key, nil
}

// HandleSend validates, persists, fans out and, when nobody received it live,
// queues a notification for the receiver. The message is only acknowledged
// once persisted. Live delivery and notification are best effort.
func (c *Coordinator) HandleSend(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	start := c.now()
	key, err := domain.Resolve(cmd.Sender, cmd.Receiver)
	if err != nil {
		c.metrics.Message("rejected", 0)
		return domain.Message{}, fmt.Errorf("%w: %w", errors.ErrInvalidMessage, err)
	}
	if cmd.Sender == cmd.Receiver {
		c.metrics.Message("rejected", 0)
		return domain.Message{}, fmt.Errorf("%w: %w: sender and receiver are the same participant",
			errors.ErrInvalidMessage, errors.ErrInvalidParticipant)
	}
	if err := cmd.Body.Validate(c.maxContentLength); err != nil {
		c.metrics.Message("rejected", 0)
		return domain.Message{}, err
	}

	body, lang := cmd.Body, ""
	if c.moderator != nil && !body.IsAudio() {
		body.Text, lang = c.moderator.Moderate(body.Text)
	}

	unlock := c.sequencer.Lock(key)
	message := domain.Message{
		ID:           uuid.New(),
		Conversation: key,
		Sender:       cmd.Sender,
		Receiver:     cmd.Receiver,
		Body:         body,
		Lang:         lang,
		CreatedAt:    c.clock.Next(),
	}
	if err := c.messages.Append(message); err != nil {
		unlock()
		c.metrics.Message("persistence_error", 0)
		c.log.Error("Message not persisted", "conversation", key, "message_id", message.ID, "error", err)
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}

	// The sender's request context may end with its connection, the
	// message is already stored and still goes out.
	delivery := c.router.Broadcast(context.WithoutCancel(ctx), key, event.FromMessage(message))
	unlock()

	outcome := "live"
	if c.shouldNotify(delivery, message.Receiver) {
		outcome = "notified"
		c.enqueueNotification(domain.NewNotification(message))
	}
	c.publish(event.FromMessage(message))
	c.metrics.Message(outcome, c.now().Sub(start).Seconds())
	c.log.Debug("Message handled",
		"conversation", key,
		"message_id", message.ID,
		"outcome", outcome,
		"failed_handles", delivery.Failed)
	return message, nil
}

func (c *Coordinator) shouldNotify(delivery contract.Delivery, receiver domain.ParticipantID) bool {
	if c.policy == NotifyConnectivity {
		return !c.presence.IsOnline(receiver)
	}
	return !delivery.ReachedParticipant(receiver)
}

// HandleTyping relays a typing indicator to the room. It is never stored
// and never notified.
func (c *Coordinator) HandleTyping(ctx context.Context, cmd domain.TypingCommand) error {
	key, err := domain.Resolve(cmd.Sender, cmd.Receiver)
	if err != nil {
		return err
	}
	c.router.Broadcast(ctx, key, event.Typing{Room: key, Sender: cmd.Sender, At: c.now().UTC()})
	return nil
}

// HandleMarkRead flips a message to read and broadcasts the receipt once.
// Receipts for an already read message succeed without any broadcast.
func (c *Coordinator) HandleMarkRead(ctx context.Context, cmd domain.MarkReadCommand) (domain.Message, error) {
	if err := cmd.Reader.Validate(); err != nil {
		return domain.Message{}, err
	}
	id, err := uuid.Parse(cmd.MessageID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: message %q", errors.ErrNotFound, cmd.MessageID)
	}

	message, err := c.messages.Get(id)
	if err != nil {
		return domain.Message{}, storageError(err)
	}
	if !message.Conversation.Includes(cmd.Reader) {
		return domain.Message{}, fmt.Errorf("%w: %s is not part of %s", errors.ErrInvalidParticipant, cmd.Reader, message.Conversation)
	}
	if message.Read {
		return message, nil
	}

	unlock := c.sequencer.Lock(message.Conversation)
	defer unlock()
	updated, changed, err := c.messages.SetRead(id, c.now())
	if err != nil {
		return domain.Message{}, storageError(err)
	}
	if !changed {
		return updated, nil
	}

	receipt := event.MessageRead{
		Room:      updated.Conversation,
		MessageID: updated.ID,
		Reader:    cmd.Reader,
		At:        updated.ReadAt,
	}
	c.router.Broadcast(context.WithoutCancel(ctx), updated.Conversation, receipt)
	c.publish(receipt)
	c.metrics.ReadReceipt()
	return updated, nil
}

// History returns one page of the conversation between self and peer,
// in chronological order, plus the cursor of the next older page.
func (c *Coordinator) History(_ context.Context, cmd domain.GetMessagesCommand) ([]domain.Message, *string, error) {
	key, err := domain.Resolve(cmd.Self, cmd.Peer)
	if err != nil {
		return nil, nil, err
	}
	messages, next, err := c.messages.ListBetween(key, cmd.Cursor)
	if err != nil {
		return nil, nil, storageError(err)
	}
	return messages, next, nil
}

// Search runs a full-text query over the conversation between self and peer.
func (c *Coordinator) Search(ctx context.Context, cmd domain.SearchCommand) ([]domain.Message, error) {
	key, err := domain.Resolve(cmd.Self, cmd.Peer)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cmd.Terms) == "" {
		return nil, fmt.Errorf("%w: empty search terms", errors.ErrInvalidMessage)
	}
	if c.index == nil {
		return nil, nil
	}

	limit := cmd.Limit
	switch {
	case limit <= 0:
		limit = defaultSearchLimit
	case limit > maxSearchLimit:
		limit = maxSearchLimit
	}

	ids, err := c.index.Search(ctx, key, cmd.Terms, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	messages := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		message, err := c.messages.Get(id)
		if stderrors.Is(err, errors.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, storageError(err)
		}
		messages = append(messages, message)
	}
	return messages, nil
}

func (c *Coordinator) IsOnline(p domain.ParticipantID) bool {
	return c.presence.IsOnline(p)
}

func (c *Coordinator) enqueueNotification(n domain.Notification) {
	select {
	case c.notifications <- n:
	default:
		c.metrics.Dropped("notification")
		c.log.Warn("Notification queue full, dropping notification", "message_id", n.MessageID, "to", n.To)
	}
}

func (c *Coordinator) publish(e event.DomainEvent) {
	if c.domainEvents == nil {
		return
	}
	select {
	case c.domainEvents <- e:
	default:
		c.metrics.Dropped("domain_event")
		c.log.Debug("Domain event channel full, dropping event", "event", e.Type())
	}
}

func storageError(err error) error {
	if stderrors.Is(err, errors.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
}
