package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"vision-inspector/internal/domain/entity"
)

func TestMemoryOperatorRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryOperatorRepository()

	op, err := repo.Get(ctx, 7, 70)
	require.NoError(t, err)
	require.Equal(t, entity.OperatorIdle, op.State)

	same, err := repo.Get(ctx, 7, 70)
	require.NoError(t, err)
	require.Same(t, op, same)

	subs, err := repo.Subscribed(ctx)
	require.NoError(t, err)
	require.Empty(t, subs)

	other, _ := repo.Get(ctx, 3, 30)
	other.SetState(entity.OperatorSubscribed)
	require.NoError(t, repo.Save(ctx, other))
	op.SetState(entity.OperatorSubscribed)
	require.NoError(t, repo.Save(ctx, op))

	subs, err = repo.Subscribed(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, int64(3), subs[0].ID)
	require.Equal(t, int64(7), subs[1].ID)
}
