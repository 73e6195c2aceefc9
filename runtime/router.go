package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/domain/event"
	"market-chat/errors"
	"market-chat/observability"
	"sync"
	"time"

	"github.com/samber/lo"
)

const defaultSinkTimeout = 500 * time.Millisecond

type room struct {
	mu      sync.Mutex
	members map[string]contract.Connection
	closed  bool
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[domain.ConversationKey]*room
}

// RoomRouter maps conversation keys to the handles subscribed to them.
// Broadcasts into one room are serialized by that room's lock, which keeps
// events in submission order for every subscriber. Rooms in different shards
// never contend.
type RoomRouter struct {
	shards      []*roomShard
	log         *slog.Logger
	sinkTimeout time.Duration
	metrics     *observability.Metrics
}

var _ contract.IRoomRouter = (*RoomRouter)(nil)

func NewRoomRouter(log *slog.Logger, shards int, sinkTimeout time.Duration, metrics *observability.Metrics) *RoomRouter {
	shards = normalizeShards(shards)
	if sinkTimeout <= 0 {
		sinkTimeout = defaultSinkTimeout
	}
	r := &RoomRouter{
		shards:      make([]*roomShard, shards),
		log:         log,
		sinkTimeout: sinkTimeout,
		metrics:     metrics,
	}
	for i := range r.shards {
		r.shards[i] = &roomShard{rooms: make(map[domain.ConversationKey]*room)}
	}
	return r
}

func (r *RoomRouter) shard(key domain.ConversationKey) *roomShard {
	return r.shards[shardIndex(string(key), len(r.shards))]
}

// Join subscribes a handle to a room, creating the room on the fly.
// It reports false when the handle was already a member.
func (r *RoomRouter) Join(key domain.ConversationKey, c contract.Connection) bool {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[key]
	if !ok {
		rm = &room{members: make(map[string]contract.Connection)}
		s.rooms[key] = rm
		r.metrics.RoomOpened()
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if _, exists := rm.members[c.ID()]; exists {
		return false
	}
	rm.members[c.ID()] = c
	return true
}

// Leave removes a handle from a room. A room left without subscribers is
// dropped immediately, membership is never persisted.
func (r *RoomRouter) Leave(key domain.ConversationKey, c contract.Connection) {
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	rm, ok := s.rooms[key]
	if !ok {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.members, c.ID())
	if len(rm.members) == 0 {
		rm.closed = true
		delete(s.rooms, key)
		r.metrics.RoomClosed()
	}
}

// Members returns a snapshot of the handles subscribed to a room.
func (r *RoomRouter) Members(key domain.ConversationKey) []contract.Connection {
	rm := r.lookup(key)
	if rm == nil {
		return nil
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return lo.Values(rm.members)
}

// Rooms counts the rooms that currently have subscribers.
func (r *RoomRouter) Rooms() int {
	count := 0
	for _, s := range r.shards {
		s.mu.RLock()
		count += len(s.rooms)
		s.mu.RUnlock()
	}
	return count
}

// Broadcast delivers the event to every subscriber of the room, best effort.
// Each handle gets at most sinkTimeout to accept the event. A handle that
// fails is removed from the room and closed, which runs its disconnect
// cleanup, while the remaining handles still receive the event.
func (r *RoomRouter) Broadcast(ctx context.Context, key domain.ConversationKey, e event.RoomEvent) contract.Delivery {
	delivery := contract.Delivery{Reached: make(map[domain.ParticipantID]int)}
	rm := r.lookup(key)
	if rm == nil {
		return delivery
	}

	var failed []contract.Connection
	rm.mu.Lock()
	if !rm.closed {
		for _, c := range rm.members {
			if err := r.send(ctx, c, e); err != nil {
				r.log.Warn("Evicting handle after failed delivery",
					"conversation", key,
					"participant", c.Participant(),
					"connection_id", c.ID(),
					"event", e.Type(),
					"error", fmt.Errorf("%w: %v", errors.ErrDeliveryBestEffort, err))
				failed = append(failed, c)
				continue
			}
			delivery.Reached[c.Participant()]++
		}
	}
	rm.mu.Unlock()

	// Eviction runs outside the room lock: closing a handle leaves every room
	// it joined, this one included.
	for _, c := range failed {
		delivery.Failed++
		r.metrics.Evicted()
		r.Leave(key, c)
		if err := c.Close(); err != nil {
			r.log.Debug("Closing evicted handle failed", "connection_id", c.ID(), "error", err)
		}
	}
	return delivery
}

func (r *RoomRouter) send(ctx context.Context, c contract.Connection, e event.RoomEvent) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.sinkTimeout)
	defer cancel()
	return c.Send(sendCtx, e)
}

func (r *RoomRouter) lookup(key domain.ConversationKey) *room {
	s := r.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rooms[key]
}
