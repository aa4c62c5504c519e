package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/wire"
)

type ICallService interface {
	InitiateCall(ctx context.Context, callerID, calleeID string, offer json.RawMessage) error
	Answer(ctx context.Context, from contract.Channel, answer json.RawMessage) error
	IceCandidate(ctx context.Context, from contract.Channel, candidate json.RawMessage) error
	Hangup(ctx context.Context, from contract.Channel) error
	OnChannelClosed(ctx context.Context, ch contract.Channel)
}

// session tracks one call's two participant handles and lifecycle state.
// The handles are captured at initiation time: signaling keeps addressing the
// two parties actually on the call even if a user id re-registers to a new
// connection mid-call.
type session struct {
	callID   string
	callerID string
	calleeID string
	caller   contract.Channel
	callee   contract.Channel
	state    domain.CallState
}

// peerOf returns the session's other participant, or false when ch is not
// part of this session at all.
func (s *session) peerOf(ch contract.Channel) (contract.Channel, bool) {
	switch ch {
	case s.caller:
		return s.callee, true
	case s.callee:
		return s.caller, true
	default:
		return nil, false
	}
}

// CallService drives the call lifecycle state machine across two
// independently failing connections. One mutex guards the session table and
// every transition-with-side-effect, which is what makes the terminal states
// absorbing even when both peers disconnect concurrently.
type CallService struct {
	mu       sync.Mutex
	log      *slog.Logger
	registry contract.IRegistry
	calls    contract.CallStore
	monitor  *observability.Monitor
	sessions map[string]*session
}

func NewCallService(log *slog.Logger, registry contract.IRegistry, calls contract.CallStore,
	monitor *observability.Monitor) *CallService {
	return &CallService{
		log:      log,
		registry: registry,
		calls:    calls,
		monitor:  monitor,
		sessions: make(map[string]*session),
	}
}

// InitiateCall rings the callee. Both parties must currently hold a calling
// channel; otherwise the caller gets an error envelope and no state is
// created anywhere. The callee's and caller's handles are captured here, at
// this instant, and referenced for the rest of the call.
func (c *CallService) InitiateCall(ctx context.Context, callerID, calleeID string, offer json.RawMessage) error {
	caller, ok := c.registry.Lookup(domain.NamespaceCalling, callerID)
	if !ok {
		return errors.ErrCallerNotConnected
	}
	callee, ok := c.registry.Lookup(domain.NamespaceCalling, calleeID)
	if !ok {
		return errors.ErrCalleeNotConnected
	}

	if err := callee.Send(ctx, wire.IncomingCall(callerID, offer)); err != nil {
		// A handle that fails to write is as unreachable as an absent one.
		return fmt.Errorf("%w: ringing callee %s: %v", errors.ErrChannel, calleeID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the lock: the callee may have disconnected after the
	// ring went out. Its close sweep has already run by the time the handle
	// leaves the registry, so inserting the session now would strand the call
	// as initiated with a dead callee handle.
	if current, ok := c.registry.Lookup(domain.NamespaceCalling, calleeID); !ok || current != callee {
		return errors.ErrCalleeNotConnected
	}

	callID, err := c.calls.Create(ctx, callerID, calleeID, domain.CallInitiated)
	if err != nil {
		return err
	}

	c.sessions[callID] = &session{
		callID:   callID,
		callerID: callerID,
		calleeID: calleeID,
		caller:   caller,
		callee:   callee,
		state:    domain.CallInitiated,
	}
	c.monitor.CallStarted()

	c.log.Info(fmt.Sprintf("Call %s initiated from %s to %s", callID, callerID, calleeID))
	return nil
}

// Answer transitions the callee's active session to answered and forwards the
// answer to the captured caller handle. An answer from a connection with no
// ringing session is a logged no-op, not an error back to the callee.
func (c *CallService) Answer(ctx context.Context, from contract.Channel, answer json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.findLocked(func(s *session) bool {
		return s.callee == from && s.state == domain.CallInitiated
	})
	if sess == nil {
		c.log.Warn("Answer without a ringing session, ignoring")
		return nil
	}

	if err := sess.caller.Send(ctx, wire.CallAnswered(answer)); err != nil {
		c.log.Warn("Forwarding answer to caller failed",
			"call_id", sess.callID, "error", err)
	}

	sess.state = domain.CallAnswered
	if err := c.calls.UpdateStatus(ctx, sess.callID, domain.CallAnswered); err != nil {
		return err
	}
	return nil
}

// IceCandidate forwards a candidate to whichever captured handle is not the
// sender. Routing is by handle identity on purpose: re-deriving the peer from
// a user id would misroute after a mid-call re-registration.
func (c *CallService) IceCandidate(ctx context.Context, from contract.Channel, candidate json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.findLocked(func(s *session) bool {
		_, ok := s.peerOf(from)
		return ok && !s.state.Terminal()
	})
	if sess == nil {
		c.log.Warn("ICE candidate without an active session, ignoring")
		return nil
	}

	peer, _ := sess.peerOf(from)
	if err := peer.Send(ctx, wire.Candidate(candidate)); err != nil {
		c.log.Warn("Forwarding ICE candidate failed", "call_id", sess.callID, "error", err)
	}
	return nil
}

// Hangup ends the sender's active call: the peer gets a hangup envelope, the
// status is persisted as ended and the session mapping is released, so the
// call id stops resolving immediately.
func (c *CallService) Hangup(ctx context.Context, from contract.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess := c.findLocked(func(s *session) bool {
		_, ok := s.peerOf(from)
		return ok && !s.state.Terminal()
	})
	if sess == nil {
		c.log.Warn("Hangup without an active session, ignoring")
		return nil
	}

	peer, _ := sess.peerOf(from)
	if err := peer.Send(ctx, wire.HangupEnvelope()); err != nil {
		c.log.Warn("Forwarding hangup failed", "call_id", sess.callID, "error", err)
	}

	sess.state = domain.CallEnded
	delete(c.sessions, sess.callID)
	c.monitor.CallEnded()

	if err := c.calls.UpdateStatus(ctx, sess.callID, domain.CallEnded); err != nil {
		return err
	}
	c.log.Info(fmt.Sprintf("Call %s ended", sess.callID))
	return nil
}

// OnChannelClosed disconnects every non-terminal session referencing the
// closed handle. Terminal sessions were already released, so a disconnect
// racing a hangup — or the second of two concurrent disconnects — finds
// nothing and writes nothing: exactly one terminal status reaches the store.
func (c *CallService) OnChannelClosed(ctx context.Context, ch contract.Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sess := range c.sessions {
		peer, ok := sess.peerOf(ch)
		if !ok || sess.state.Terminal() {
			continue
		}

		if err := peer.Send(ctx, wire.HangupEnvelope()); err != nil {
			// The peer may be mid-disconnect itself; its own close event
			// handles the rest.
			c.log.Debug("Hangup to remaining peer failed", "call_id", sess.callID, "error", err)
		}

		sess.state = domain.CallDisconnected
		delete(c.sessions, sess.callID)
		c.monitor.CallEnded()

		// Re-check the persisted status before writing: the in-memory guard
		// covers this process, the store guard covers anything else that
		// already finalized the row.
		if status, err := c.calls.GetStatus(ctx, sess.callID); err == nil && status.Terminal() {
			continue
		}
		if err := c.calls.UpdateStatus(ctx, sess.callID, domain.CallDisconnected); err != nil {
			c.monitor.IncrErrorCount()
			c.log.Error("Persisting disconnect failed", "call_id", sess.callID, "error", err)
			continue
		}
		c.log.Info(fmt.Sprintf("Call %s disconnected", sess.callID))
	}
}

func (c *CallService) findLocked(match func(*session) bool) *session {
	for _, sess := range c.sessions {
		if match(sess) {
			return sess
		}
	}
	return nil
}
