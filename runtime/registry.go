// Package runtime owns the shared state every connection task touches: the
// presence registry and the supervised background workers.
package runtime

import (
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

// Registry is the concurrency-safe mapping from (namespace, user id) to the
// user's live channel handle. It performs no liveness probing: closure must
// actively call Unregister, and a lookup after that returns nothing.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.Namespace]map[string]contract.Channel
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[domain.Namespace]map[string]contract.Channel{
			domain.NamespaceMessaging: make(map[string]contract.Channel),
			domain.NamespaceGroup:     make(map[string]contract.Channel),
			domain.NamespaceCalling:   make(map[string]contract.Channel),
		},
	}
}

// Register binds ch under (ns, userID), unconditionally overwriting any
// existing handle. The previous channel is not closed; it simply stops being
// addressable, which is what a reconnecting client expects.
func (r *Registry) Register(ns domain.Namespace, userID string, ch contract.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.sessions[ns]
	if !ok {
		m = make(map[string]contract.Channel)
		r.sessions[ns] = m
	}
	m[userID] = ch
}

func (r *Registry) Lookup(ns domain.Namespace, userID string) (contract.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.sessions[ns][userID]
	return ch, ok
}

// Unregister removes the entry only if the stored handle is identical to ch.
// A stale close handler racing a reconnect must not evict the newer
// registration made under the same user id.
func (r *Registry) Unregister(ns domain.Namespace, userID string, ch contract.Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[ns][userID]; ok && current == ch {
		delete(r.sessions[ns], userID)
	}
}

// Count returns the number of live handles in one namespace.
func (r *Registry) Count(ns domain.Namespace) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[ns])
}
