package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/wire"
)

type IGroupService interface {
	SendGroup(ctx context.Context, groupID, senderID, plaintext string) (wire.Envelope, error)
}

type GroupService struct {
	log           *slog.Logger
	registry      contract.IRegistry
	groups        contract.GroupStore
	encryptor     contract.Encryptor
	notifier      contract.Notifier
	monitor       *observability.Monitor
	offlineNotify bool
}

// NewGroupService builds the group relay. offlineNotify controls whether
// roster members without a live channel get the push fallback; off matches
// the historical behavior of dropping undelivered group messages.
func NewGroupService(log *slog.Logger, registry contract.IRegistry, groups contract.GroupStore,
	encryptor contract.Encryptor, notifier contract.Notifier, monitor *observability.Monitor,
	offlineNotify bool) *GroupService {
	return &GroupService{
		log:           log,
		registry:      registry,
		groups:        groups,
		encryptor:     encryptor,
		notifier:      notifier,
		monitor:       monitor,
		offlineNotify: offlineNotify,
	}
}

// SendGroup persists one encrypted row, then fans the message out to every
// roster member with a live group channel. Each member's delivery is
// independent: one dead handle never aborts the rest.
//
// Live delivery carries the decrypted copy: the members are authenticated
// peers on channels this relay opened itself, so ciphertext would only be
// decrypted again on the other side of the same hop.
func (s *GroupService) SendGroup(ctx context.Context, groupID, senderID, plaintext string) (wire.Envelope, error) {
	if groupID == "" {
		return wire.Envelope{}, errors.ErrMissingGroup
	}
	if err := validateText(plaintext); err != nil {
		return wire.Envelope{}, err
	}

	at := time.Now().UTC()
	encrypted, err := s.encryptor.Encrypt(plaintext)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("encrypting group message: %w", err)
	}
	if err := s.groups.InsertMessage(ctx, groupID, senderID, encrypted, at); err != nil {
		return wire.Envelope{}, err
	}

	members, err := s.groups.Members(ctx, groupID)
	if err != nil {
		return wire.Envelope{}, err
	}

	// Decrypt once, immediately before delivery; the plaintext copy lives
	// only for the duration of the fan-out.
	message, err := s.encryptor.Decrypt(encrypted)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("decrypting for transport: %w", err)
	}

	for _, memberID := range members {
		ch, ok := s.registry.Lookup(domain.NamespaceGroup, memberID)
		if !ok {
			if s.offlineNotify {
				s.notifyOffline(ctx, memberID, senderID, message)
			}
			continue
		}
		if err := ch.Send(ctx, wire.ReceiveGroupMessage(groupID, senderID, message, at)); err != nil {
			s.log.Warn("Group delivery failed for member",
				"group_id", groupID, "member_id", memberID, "error", err)
			if s.offlineNotify {
				s.notifyOffline(ctx, memberID, senderID, message)
			}
		}
	}
	s.monitor.IncrGroupFanouts()

	return wire.GroupAck(groupID, at), nil
}

func (s *GroupService) notifyOffline(ctx context.Context, memberID, senderID, message string) {
	if err := s.notifier.NotifyOffline(ctx, memberID, senderID, message); err != nil {
		s.monitor.IncrErrorCount()
		s.log.Warn("Group push fallback failed",
			"member_id", memberID, "sender_id", senderID, "error", err)
		return
	}
	s.monitor.IncrMessagesNotified()
}
