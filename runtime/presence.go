package runtime

import (
	"market-chat/contract"
	"market-chat/domain"
	"market-chat/observability"
	"sync"
	"time"

	"github.com/samber/lo"
)

type presenceEntry struct {
	handles  map[string]contract.Connection
	lastSeen time.Time
}

type presenceShard struct {
	mu      sync.RWMutex
	entries map[domain.ParticipantID]*presenceEntry
}

// PresenceRegistry maps each participant to its live connection handles.
// The table is split in shards keyed by participant, each guarded by its own
// lock, so two participants never contend unless they hash together.
type PresenceRegistry struct {
	shards  []*presenceShard
	now     func() time.Time
	metrics *observability.Metrics
}

var _ contract.IPresenceRegistry = (*PresenceRegistry)(nil)

func NewPresenceRegistry(shards int, metrics *observability.Metrics) *PresenceRegistry {
	shards = normalizeShards(shards)
	r := &PresenceRegistry{
		shards:  make([]*presenceShard, shards),
		now:     time.Now,
		metrics: metrics,
	}
	for i := range r.shards {
		r.shards[i] = &presenceShard{entries: make(map[domain.ParticipantID]*presenceEntry)}
	}
	return r
}

func (r *PresenceRegistry) shard(p domain.ParticipantID) *presenceShard {
	return r.shards[shardIndex(string(p), len(r.shards))]
}

// Register adds a handle under the participant. It is idempotent per handle
// and reports whether the participant just came online.
func (r *PresenceRegistry) Register(p domain.ParticipantID, c contract.Connection) bool {
	s := r.shard(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[p]
	if !ok {
		entry = &presenceEntry{handles: make(map[string]contract.Connection)}
		s.entries[p] = entry
	}
	wasOnline := len(entry.handles) > 0
	entry.handles[c.ID()] = c
	entry.lastSeen = r.now()

	if !wasOnline {
		r.metrics.ParticipantOnline(true)
	}
	return !wasOnline
}

// Unregister removes exactly that handle and reports the online to offline
// transition. Unknown handles are ignored.
func (r *PresenceRegistry) Unregister(p domain.ParticipantID, c contract.Connection) bool {
	s := r.shard(p)
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[p]
	if !ok {
		return false
	}
	if _, exists := entry.handles[c.ID()]; !exists {
		return false
	}
	delete(entry.handles, c.ID())
	entry.lastSeen = r.now()

	if len(entry.handles) == 0 {
		r.metrics.ParticipantOnline(false)
		return true
	}
	return false
}

// HandlesFor returns a snapshot of the live handles, empty when offline.
func (r *PresenceRegistry) HandlesFor(p domain.ParticipantID) []contract.Connection {
	s := r.shard(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[p]
	if !ok {
		return nil
	}
	return lo.Values(entry.handles)
}

func (r *PresenceRegistry) IsOnline(p domain.ParticipantID) bool {
	s := r.shard(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[p]
	return ok && len(entry.handles) > 0
}

// LastSeen is the time of the latest register or unregister of p.
func (r *PresenceRegistry) LastSeen(p domain.ParticipantID) (time.Time, bool) {
	s := r.shard(p)
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[p]
	if !ok {
		return time.Time{}, false
	}
	return entry.lastSeen, true
}

func (r *PresenceRegistry) OnlineCount() int {
	count := 0
	for _, s := range r.shards {
		s.mu.RLock()
		for _, entry := range s.entries {
			if len(entry.handles) > 0 {
				count++
			}
		}
		s.mu.RUnlock()
	}
	return count
}
