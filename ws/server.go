// Package ws is the websocket edge of the relay: it upgrades connections,
// decodes inbound frames and hands them to the service matching the endpoint
// the client connected to. Each endpoint is one namespace; a client wanting
// direct messages and calls opens one connection per concern.
package ws

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/services"
	"chat-relay/wire"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Clients connect from app webviews and browsers alike.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	log         *slog.Logger
	registry    contract.IRegistry
	messages    services.IMessageService
	groups      services.IGroupService
	calls       services.ICallService
	monitor     *observability.Monitor
	sendTimeout time.Duration
}

func NewServer(log *slog.Logger, registry contract.IRegistry,
	messages services.IMessageService, groups services.IGroupService, calls services.ICallService,
	monitor *observability.Monitor, sendTimeout time.Duration) *Server {
	return &Server{
		log:         log,
		registry:    registry,
		messages:    messages,
		groups:      groups,
		calls:       calls,
		monitor:     monitor,
		sendTimeout: sendTimeout,
	}
}

// Mount registers the three relay endpoints on mux.
func (s *Server) Mount(mux *http.ServeMux) {
	mux.HandleFunc("/ws/messages", s.serve(domain.NamespaceMessaging))
	mux.HandleFunc("/ws/groups", s.serve(domain.NamespaceGroup))
	mux.HandleFunc("/ws/calls", s.serve(domain.NamespaceCalling))
}

func (s *Server) serve(ns domain.Namespace) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sock, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("Upgrade failed", "namespace", ns, "error", err)
			return
		}

		conn := newConn(sock, s.sendTimeout)
		s.monitor.ConnOpened(ns)
		s.log.Debug("Connection opened", "namespace", ns)

		userID := s.readLoop(r.Context(), ns, conn)

		// Cleanup order matters: the presence entry goes first so no new
		// message picks this handle, then any call it was part of is torn
		// down.
		if userID != "" {
			s.registry.Unregister(ns, userID, conn)
		}
		if ns == domain.NamespaceCalling {
			s.calls.OnChannelClosed(context.WithoutCancel(r.Context()), conn)
		}
		conn.close()
		s.monitor.ConnClosed(ns)
		s.log.Debug("Connection closed", "namespace", ns, "user_id", userID)
	}
}

// readLoop pumps frames until the peer goes away and returns the user id the
// connection registered as, if any.
func (s *Server) readLoop(ctx context.Context, ns domain.Namespace, conn *Conn) (userID string) {
	for {
		kind, data, err := conn.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("Read failed", "namespace", ns, "error", err)
			}
			return userID
		}
		if kind != websocket.TextMessage {
			s.reply(ctx, conn, wire.ErrorEnvelope("binary frames are not supported"))
			continue
		}

		frame, err := wire.Decode(data)
		if err != nil {
			s.reply(ctx, conn, wire.ErrorEnvelope(err.Error()))
			continue
		}

		if reg, ok := frame.(*wire.Register); ok {
			if userID != "" && userID != reg.UserID {
				s.registry.Unregister(ns, userID, conn)
			}
			userID = reg.UserID
			s.registry.Register(ns, userID, conn)
			s.log.Info("User registered", "namespace", ns, "user_id", userID)
			continue
		}
		if userID == "" {
			s.reply(ctx, conn, wire.ErrorEnvelope("register first"))
			continue
		}

		s.dispatch(ctx, ns, conn, frame)
	}
}

func (s *Server) dispatch(ctx context.Context, ns domain.Namespace, conn *Conn, frame any) {
	var (
		reply wire.Envelope
		err   error
	)

	switch ns {
	case domain.NamespaceMessaging:
		msg, ok := frame.(*wire.SendMessage)
		if !ok {
			s.reply(ctx, conn, wire.ErrorEnvelope("unsupported envelope on this endpoint"))
			return
		}
		reply, err = s.messages.SendDirect(ctx, msg.SenderID, msg.ReceiverID, msg.Message)

	case domain.NamespaceGroup:
		msg, ok := frame.(*wire.SendGroupMessage)
		if !ok {
			s.reply(ctx, conn, wire.ErrorEnvelope("unsupported envelope on this endpoint"))
			return
		}
		reply, err = s.groups.SendGroup(ctx, msg.GroupID, msg.SenderID, msg.Message)

	case domain.NamespaceCalling:
		switch f := frame.(type) {
		case *wire.Call:
			err = s.calls.InitiateCall(ctx, f.CallerID, f.CalleeID, f.Offer)
		case *wire.Answer:
			err = s.calls.Answer(ctx, conn, f.Answer)
		case *wire.IceCandidate:
			err = s.calls.IceCandidate(ctx, conn, f.Candidate)
		case wire.Hangup:
			err = s.calls.Hangup(ctx, conn)
		default:
			s.reply(ctx, conn, wire.ErrorEnvelope("unsupported envelope on this endpoint"))
			return
		}
	}

	if err != nil {
		s.reply(ctx, conn, s.toErrorEnvelope(err))
		return
	}
	if reply.Type != "" {
		s.reply(ctx, conn, reply)
	}
}

// toErrorEnvelope decides what the originator gets to see. Validation and
// presence problems are theirs to fix; anything else stays an opaque internal
// error.
func (s *Server) toErrorEnvelope(err error) wire.Envelope {
	if errors.Is(err, errors.ErrValidation) || errors.Is(err, errors.ErrChannel) {
		return wire.ErrorEnvelope(err.Error())
	}
	s.monitor.IncrErrorCount()
	s.log.Error("Relay operation failed", "error", err)
	return wire.ErrorEnvelope("internal error")
}

func (s *Server) reply(ctx context.Context, conn *Conn, env wire.Envelope) {
	if err := conn.Send(ctx, env); err != nil {
		s.log.Debug("Reply failed", "error", err)
	}
}
