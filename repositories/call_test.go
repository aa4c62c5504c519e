package repositories

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"chat-relay/domain"
	"chat-relay/errors"
)

func TestCallRepository_Create_Update_Get(t *testing.T) {
	req := require.New(t)
	repository := NewCallRepository(openTestDB(t), slog.Default())
	ctx := context.Background()

	callID, err := repository.Create(ctx, "alice", "bob", domain.CallInitiated)
	req.NoError(err)
	req.NotEmpty(callID)

	status, err := repository.GetStatus(ctx, callID)
	req.NoError(err)
	req.Equal(domain.CallInitiated, status)

	req.NoError(repository.UpdateStatus(ctx, callID, domain.CallAnswered))
	req.NoError(repository.UpdateStatus(ctx, callID, domain.CallEnded))

	call, err := repository.Get(ctx, callID)
	req.NoError(err)
	req.Equal("alice", call.CallerID)
	req.Equal("bob", call.CalleeID)
	req.Equal(domain.CallEnded, call.Status)
	req.False(call.UpdatedAt.Before(call.CreatedAt))
}

func TestCallRepository_Unknown_Call_Is_Store_Error(t *testing.T) {
	req := require.New(t)
	repository := NewCallRepository(openTestDB(t), slog.Default())
	ctx := context.Background()

	_, err := repository.GetStatus(ctx, "no-such-call")
	req.ErrorIs(err, errors.ErrStore)

	err = repository.UpdateStatus(ctx, "no-such-call", domain.CallEnded)
	req.ErrorIs(err, errors.ErrStore)
}
