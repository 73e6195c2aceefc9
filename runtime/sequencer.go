package runtime

import (
	"market-chat/domain"
	"sync"
)

type sequence struct {
	mu   sync.Mutex
	refs int
}

type sequencerShard struct {
	mu    sync.Mutex
	locks map[domain.ConversationKey]*sequence
}

// sequencer hands out one mutex per conversation. Holding it across persist
// and broadcast makes storage order and delivery order the same for a room,
// without serializing unrelated conversations. Entries are reference counted
// and vanish once nobody holds or waits on them.
type sequencer struct {
	shards []*sequencerShard
}

func newSequencer(shards int) *sequencer {
	shards = normalizeShards(shards)
	s := &sequencer{shards: make([]*sequencerShard, shards)}
	for i := range s.shards {
		s.shards[i] = &sequencerShard{locks: make(map[domain.ConversationKey]*sequence)}
	}
	return s
}

// Lock blocks until the conversation is free and returns its unlock function.
func (s *sequencer) Lock(key domain.ConversationKey) func() {
	shard := s.shards[shardIndex(string(key), len(s.shards))]

	shard.mu.Lock()
	seq, ok := shard.locks[key]
	if !ok {
		seq = &sequence{}
		shard.locks[key] = seq
	}
	seq.refs++
	shard.mu.Unlock()

	seq.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			seq.mu.Unlock()
			shard.mu.Lock()
			seq.refs--
			if seq.refs == 0 {
				delete(shard.locks, key)
			}
			shard.mu.Unlock()
		})
	}
}

func (s *sequencer) size() int {
	n := 0
	for _, shard := range s.shards {
		shard.mu.Lock()
		n += len(shard.locks)
		shard.mu.Unlock()
	}
	return n
}
