// Package observability aggregates relay counters for the heartbeat log.
package observability

import (
	"sync/atomic"

	"chat-relay/domain"
)

// RelayStats is one consistent snapshot of the relay's counters.
type RelayStats struct {
	MessagingConnections uint64 `json:"messaging_connections"`
	GroupConnections     uint64 `json:"group_connections"`
	CallingConnections   uint64 `json:"calling_connections"`

	MessagesRelayed  uint64 `json:"messages_relayed"`
	MessagesNotified uint64 `json:"messages_notified"`
	GroupFanouts     uint64 `json:"group_fanouts"`

	CallsActive    uint64 `json:"calls_active"`
	CallsCompleted uint64 `json:"calls_completed"`

	ErrorCount uint64 `json:"error_count"`
}

// Monitor collects counters from connection tasks and services.
// All methods are safe for concurrent use.
type Monitor struct {
	connections map[domain.Namespace]*atomic.Int64

	messagesRelayed  atomic.Uint64
	messagesNotified atomic.Uint64
	groupFanouts     atomic.Uint64

	callsActive    atomic.Int64
	callsCompleted atomic.Uint64

	errorCount atomic.Uint64
}

func NewMonitor() *Monitor {
	return &Monitor{
		connections: map[domain.Namespace]*atomic.Int64{
			domain.NamespaceMessaging: {},
			domain.NamespaceGroup:     {},
			domain.NamespaceCalling:   {},
		},
	}
}

func (m *Monitor) ConnOpened(ns domain.Namespace) {
	if c, ok := m.connections[ns]; ok {
		c.Add(1)
	}
}

func (m *Monitor) ConnClosed(ns domain.Namespace) {
	if c, ok := m.connections[ns]; ok {
		c.Add(-1)
	}
}

func (m *Monitor) IncrMessagesRelayed()  { m.messagesRelayed.Add(1) }
func (m *Monitor) IncrMessagesNotified() { m.messagesNotified.Add(1) }
func (m *Monitor) IncrGroupFanouts()     { m.groupFanouts.Add(1) }
func (m *Monitor) IncrErrorCount()       { m.errorCount.Add(1) }

func (m *Monitor) CallStarted() { m.callsActive.Add(1) }
func (m *Monitor) CallEnded() {
	m.callsActive.Add(-1)
	m.callsCompleted.Add(1)
}

func (m *Monitor) Snapshot() RelayStats {
	return RelayStats{
		MessagingConnections: clamp(m.connections[domain.NamespaceMessaging].Load()),
		GroupConnections:     clamp(m.connections[domain.NamespaceGroup].Load()),
		CallingConnections:   clamp(m.connections[domain.NamespaceCalling].Load()),
		MessagesRelayed:      m.messagesRelayed.Load(),
		MessagesNotified:     m.messagesNotified.Load(),
		GroupFanouts:         m.groupFanouts.Load(),
		CallsActive:          clamp(m.callsActive.Load()),
		CallsCompleted:       m.callsCompleted.Load(),
		ErrorCount:           m.errorCount.Load(),
	}
}

func clamp(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}
