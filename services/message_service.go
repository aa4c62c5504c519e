// Package services holds the relay engine: the direct-message relay, the
// group fan-out and the call session manager. Each service consults the
// presence registry for live targets and falls back or no-ops per envelope
// kind; all persistence completes before any forward or fallback runs.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/wire"
)

type IMessageService interface {
	SendDirect(ctx context.Context, senderID, receiverID, plaintext string) (wire.Envelope, error)
}

type MessageService struct {
	log       *slog.Logger
	registry  contract.IRegistry
	chats     contract.ChatStore
	encryptor contract.Encryptor
	notifier  contract.Notifier
	monitor   *observability.Monitor
}

func NewMessageService(log *slog.Logger, registry contract.IRegistry, chats contract.ChatStore,
	encryptor contract.Encryptor, notifier contract.Notifier, monitor *observability.Monitor) *MessageService {
	return &MessageService{
		log:       log,
		registry:  registry,
		chats:     chats,
		encryptor: encryptor,
		notifier:  notifier,
		monitor:   monitor,
	}
}

// SendDirect relays one direct message. The message is encrypted and
// persisted before either delivery path runs: a store failure aborts the
// whole operation with no partial side effect, and by the time the receiver
// is resolved the message is already durable, so a push failure only loses
// the notification, never the message.
//
// The returned ack goes to the sender whether the receiver was live or not.
func (s *MessageService) SendDirect(ctx context.Context, senderID, receiverID, plaintext string) (wire.Envelope, error) {
	if err := validateText(plaintext); err != nil {
		return wire.Envelope{}, err
	}

	at := time.Now().UTC()
	encrypted, err := s.encryptor.Encrypt(plaintext)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("encrypting message: %w", err)
	}

	chatID, err := s.chats.FindOrCreateChat(ctx, senderID, receiverID)
	if err != nil {
		return wire.Envelope{}, err
	}
	if err := s.chats.InsertMessage(ctx, chatID, senderID, encrypted, at); err != nil {
		return wire.Envelope{}, err
	}

	if ch, ok := s.registry.Lookup(domain.NamespaceMessaging, receiverID); ok {
		if err := ch.Send(ctx, wire.ReceiveMessage(senderID, encrypted, at)); err != nil {
			// A dead handle is the same as an absent one.
			s.log.Warn("Live delivery failed, falling back to push",
				"receiver_id", receiverID, "error", err)
			s.notifyOffline(ctx, receiverID, senderID, plaintext)
		} else {
			s.monitor.IncrMessagesRelayed()
		}
	} else {
		s.notifyOffline(ctx, receiverID, senderID, plaintext)
	}

	return wire.MessageAck(chatID, at), nil
}

func (s *MessageService) notifyOffline(ctx context.Context, receiverID, senderID, plaintext string) {
	if err := s.notifier.NotifyOffline(ctx, receiverID, senderID, plaintext); err != nil {
		s.monitor.IncrErrorCount()
		s.log.Warn("Push fallback failed",
			"receiver_id", receiverID, "sender_id", senderID, "error", err)
		return
	}
	s.monitor.IncrMessagesNotified()
}

func validateText(plaintext string) error {
	if plaintext == "" {
		return errors.ErrEmptyMessage
	}
	if !utf8.ValidString(plaintext) {
		return errors.ErrNotTextual
	}
	return nil
}
