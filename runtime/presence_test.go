package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresenceRegistry_Transitions(t *testing.T) {
	req := require.New(t)
	registry := NewPresenceRegistry(4, nil)
	first := newFakeConnection("bob")
	second := newFakeConnection("bob")

	// Given bob is offline
	req.False(registry.IsOnline("bob"))
	req.Empty(registry.HandlesFor("bob"))

	// When bob connects twice
	req.True(registry.Register("bob", first))
	req.False(registry.Register("bob", second))
	req.False(registry.Register("bob", second))

	// Then bob is online with two handles
	req.True(registry.IsOnline("bob"))
	req.Len(registry.HandlesFor("bob"), 2)
	req.Equal(1, registry.OnlineCount())

	// When one handle goes away bob stays online
	req.False(registry.Unregister("bob", first))
	req.True(registry.IsOnline("bob"))

	// When the last handle goes away bob is offline
	req.True(registry.Unregister("bob", second))
	req.False(registry.IsOnline("bob"))
	req.Zero(registry.OnlineCount())

	// Then removing an unknown handle is a no-op
	req.False(registry.Unregister("bob", second))
	_, seen := registry.LastSeen("bob")
	req.True(seen)
}

func TestPresenceRegistry_ConcurrentHandles(t *testing.T) {
	req := require.New(t)
	registry := NewPresenceRegistry(8, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	online, offline := 0, 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := newFakeConnection("carol")
			came := registry.Register("carol", conn)
			went := registry.Unregister("carol", conn)
			mu.Lock()
			defer mu.Unlock()
			if came {
				online++
			}
			if went {
				offline++
			}
		}()
	}
	wg.Wait()

	// Every came-online transition is matched by a went-offline one
	req.Equal(online, offline)
	req.GreaterOrEqual(online, 1)
	req.False(registry.IsOnline("carol"))
}
