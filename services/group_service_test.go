package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/mocks"
	"chat-relay/observability"
	"chat-relay/wire"
)

func TestGroupService_SendGroup(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	registry := mocks.NewMockIRegistry(ctrl)
	groups := mocks.NewMockGroupStore(ctrl)
	encryptor := mocks.NewMockEncryptor(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	svc := NewGroupService(discardLogger(), registry, groups, encryptor, notifier, observability.NewMonitor(), false)

	ctx := context.Background()

	isGroupDelivery := func(env wire.Envelope) bool {
		return env.Type == wire.TypeReceiveGroupMessage &&
			env.GroupID == "grp-1" && env.SenderID == "alice" && env.Message == "salut"
	}

	t.Run("should persist once and fan out to every connected member", func(t *testing.T) {
		req := require.New(t)
		alice := mocks.NewMockChannel(ctrl)
		bob := mocks.NewMockChannel(ctrl)

		encryptor.EXPECT().Encrypt("salut").Return("iv:ct", nil)
		groups.EXPECT().InsertMessage(ctx, "grp-1", "alice", "iv:ct", gomock.Any()).Return(nil).Times(1)
		groups.EXPECT().Members(ctx, "grp-1").Return([]string{"alice", "bob", "carol"}, nil)
		encryptor.EXPECT().Decrypt("iv:ct").Return("salut", nil)

		// Two of three members hold a live channel; carol is simply skipped.
		registry.EXPECT().Lookup(domain.NamespaceGroup, "alice").Return(alice, true)
		registry.EXPECT().Lookup(domain.NamespaceGroup, "bob").Return(bob, true)
		registry.EXPECT().Lookup(domain.NamespaceGroup, "carol").Return(nil, false)
		alice.EXPECT().Send(ctx, gomock.Cond(isGroupDelivery)).Return(nil)
		bob.EXPECT().Send(ctx, gomock.Cond(isGroupDelivery)).Return(nil)
		notifier.EXPECT().NotifyOffline(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		ack, err := svc.SendGroup(ctx, "grp-1", "alice", "salut")

		req.NoError(err)
		req.Equal(wire.TypeAck, ack.Type)
		req.Equal("grp-1", ack.GroupID)
	})

	t.Run("should keep delivering after one member channel fails", func(t *testing.T) {
		req := require.New(t)
		alice := mocks.NewMockChannel(ctrl)
		bob := mocks.NewMockChannel(ctrl)

		encryptor.EXPECT().Encrypt("salut").Return("iv:ct", nil)
		groups.EXPECT().InsertMessage(ctx, "grp-1", "alice", "iv:ct", gomock.Any()).Return(nil)
		groups.EXPECT().Members(ctx, "grp-1").Return([]string{"alice", "bob"}, nil)
		encryptor.EXPECT().Decrypt("iv:ct").Return("salut", nil)

		registry.EXPECT().Lookup(domain.NamespaceGroup, "alice").Return(alice, true)
		registry.EXPECT().Lookup(domain.NamespaceGroup, "bob").Return(bob, true)
		alice.EXPECT().Send(ctx, gomock.Any()).Return(errors.ErrChannel)
		bob.EXPECT().Send(ctx, gomock.Cond(isGroupDelivery)).Return(nil)

		ack, err := svc.SendGroup(ctx, "grp-1", "alice", "salut")

		req.NoError(err)
		req.Equal(wire.TypeAck, ack.Type)
	})

	t.Run("should push to offline members when the fallback is enabled", func(t *testing.T) {
		req := require.New(t)
		withPush := NewGroupService(discardLogger(), registry, groups, encryptor, notifier,
			observability.NewMonitor(), true)

		encryptor.EXPECT().Encrypt("salut").Return("iv:ct", nil)
		groups.EXPECT().InsertMessage(ctx, "grp-1", "alice", "iv:ct", gomock.Any()).Return(nil)
		groups.EXPECT().Members(ctx, "grp-1").Return([]string{"carol"}, nil)
		encryptor.EXPECT().Decrypt("iv:ct").Return("salut", nil)
		registry.EXPECT().Lookup(domain.NamespaceGroup, "carol").Return(nil, false)
		notifier.EXPECT().NotifyOffline(ctx, "carol", "alice", "salut").Return(nil)

		_, err := withPush.SendGroup(ctx, "grp-1", "alice", "salut")

		req.NoError(err)
	})

	t.Run("should reject a missing group id", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.SendGroup(ctx, "", "alice", "salut")

		req.ErrorIs(err, errors.ErrMissingGroup)
		req.ErrorIs(err, errors.ErrValidation)
	})

	t.Run("should reject an empty message", func(t *testing.T) {
		req := require.New(t)

		_, err := svc.SendGroup(ctx, "grp-1", "alice", "")

		req.ErrorIs(err, errors.ErrEmptyMessage)
	})

	t.Run("should abort before the fan-out when the insert fails", func(t *testing.T) {
		req := require.New(t)

		encryptor.EXPECT().Encrypt("salut").Return("iv:ct", nil)
		groups.EXPECT().InsertMessage(ctx, "grp-1", "alice", "iv:ct", gomock.Any()).Return(errors.ErrStore)
		groups.EXPECT().Members(gomock.Any(), gomock.Any()).Times(0)
		registry.EXPECT().Lookup(gomock.Any(), gomock.Any()).Times(0)

		_, err := svc.SendGroup(ctx, "grp-1", "alice", "salut")

		req.ErrorIs(err, errors.ErrStore)
	})
}
