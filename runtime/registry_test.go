package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/wire"
)

// Non-zero size so every allocation has a distinct address.
type fakeChannel struct{ name string }

func (f *fakeChannel) Send(_ context.Context, _ wire.Envelope) error {
	return nil
}

func TestRegistry_Register_And_Lookup(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	ch := &fakeChannel{}

	// Given no user is connected
	_, ok := registry.Lookup(domain.NamespaceMessaging, userID)
	req.False(ok)

	// When a user registers on the messaging namespace
	registry.Register(domain.NamespaceMessaging, userID, ch)

	// Then the handle is addressable in that namespace only
	got, ok := registry.Lookup(domain.NamespaceMessaging, userID)
	req.True(ok)
	req.Same(ch, got)

	_, ok = registry.Lookup(domain.NamespaceCalling, userID)
	req.False(ok)
}

func TestRegistry_Register_Twice_Second_Handle_Wins(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	first := &fakeChannel{}
	second := &fakeChannel{}

	// When the same user registers twice
	registry.Register(domain.NamespaceMessaging, userID, first)
	registry.Register(domain.NamespaceMessaging, userID, second)

	// Then lookup returns the second handle
	got, ok := registry.Lookup(domain.NamespaceMessaging, userID)
	req.True(ok)
	req.Same(second, got)
}

func TestRegistry_Stale_Unregister_Keeps_Newer_Registration(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	stale := &fakeChannel{}
	fresh := &fakeChannel{}

	// Given a reconnect replaced the original handle
	registry.Register(domain.NamespaceMessaging, userID, stale)
	registry.Register(domain.NamespaceMessaging, userID, fresh)

	// When the original connection's close handler fires late
	registry.Unregister(domain.NamespaceMessaging, userID, stale)

	// Then the newer registration survives
	got, ok := registry.Lookup(domain.NamespaceMessaging, userID)
	req.True(ok)
	req.Same(fresh, got)

	// And unregistering with the current handle removes it
	registry.Unregister(domain.NamespaceMessaging, userID, fresh)
	_, ok = registry.Lookup(domain.NamespaceMessaging, userID)
	req.False(ok)
}

func TestRegistry_Same_User_Independent_Namespaces(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	userID := uuid.NewString()
	messaging := &fakeChannel{}
	calling := &fakeChannel{}

	registry.Register(domain.NamespaceMessaging, userID, messaging)
	registry.Register(domain.NamespaceCalling, userID, calling)

	registry.Unregister(domain.NamespaceMessaging, userID, messaging)

	// Then the calling namespace is untouched
	got, ok := registry.Lookup(domain.NamespaceCalling, userID)
	req.True(ok)
	req.Same(calling, got)
	req.Equal(0, registry.Count(domain.NamespaceMessaging))
	req.Equal(1, registry.Count(domain.NamespaceCalling))
}

func TestRegistry_Concurrent_Register_Lookup_Unregister(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			userID := uuid.NewString()
			ch := &fakeChannel{}
			registry.Register(domain.NamespaceGroup, userID, ch)
			_, _ = registry.Lookup(domain.NamespaceGroup, userID)
			registry.Unregister(domain.NamespaceGroup, userID, ch)
		}()
	}
	wg.Wait()

	req.Equal(0, registry.Count(domain.NamespaceGroup))
}
