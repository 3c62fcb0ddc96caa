package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
	"vision-inspector/internal/infrastructure/storage"
)

func TestOperatorService_SubscribeAndMute(t *testing.T) {
	repo := storage.NewMemoryOperatorRepository()
	svc := NewOperatorService(repo)
	ctx := context.Background()

	op, err := svc.Subscribe(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.OperatorSubscribed, op.State)

	chats, err := svc.AlertChats(ctx)
	require.NoError(t, err)
	require.Equal(t, []int64{10}, chats)

	op, err = svc.Mute(ctx, 1, 10)
	require.NoError(t, err)
	require.Equal(t, entity.OperatorMuted, op.State)

	chats, err = svc.AlertChats(ctx)
	require.NoError(t, err)
	require.Empty(t, chats)
}

func TestOperatorService_Unsubscribe(t *testing.T) {
	repo := storage.NewMemoryOperatorRepository()
	svc := NewOperatorService(repo)
	ctx := context.Background()

	_, err := svc.Subscribe(ctx, 2, 20)
	require.NoError(t, err)
	op, err := svc.Unsubscribe(ctx, 2, 20)
	require.NoError(t, err)
	require.Equal(t, entity.OperatorIdle, op.State)
}
