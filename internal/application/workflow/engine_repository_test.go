package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
	conversationMocks "github.com/orhanxakarsu/music-agent/internal/domain/conversation/mocks"
)

func newMockedEngine(t *testing.T, repo conversation.Repository) *Engine {
	t.Helper()
	steps := NewSteps(Deps{}, zerolog.Nop())
	engine, err := NewEngine(repo, steps.Registry(), Options{}, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func TestEngine_RepositoryFailures(t *testing.T) {
	ctx := context.Background()
	in := conversation.Input{MessageID: "m1", Text: "hello"}
	storeDown := errors.New("store down")

	t.Run("load failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().Get(ctx, phone).Return(nil, storeDown)

		_, err := newMockedEngine(t, repo).Submit(ctx, phone, in)

		require.Error(t, err)
		assert.ErrorIs(t, err, storeDown)
	})

	t.Run("claim lost to another writer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().Get(ctx, phone).Return(nil, nil)
		repo.EXPECT().
			Save(ctx, gomock.Any(), int64(0)).
			DoAndReturn(func(_ context.Context, cp *conversation.Checkpoint, _ int64) error {
				assert.Equal(t, conversation.StatusRunning, cp.Status)
				assert.Equal(t, string(EntryStep), cp.NextStep)
				assert.True(t, cp.HasConsumed("m1"))
				return conversation.ErrVersionConflict
			})

		out, err := newMockedEngine(t, repo).Submit(ctx, phone, in)

		require.NoError(t, err)
		assert.Equal(t, OutcomeBusy, out.Status)
	})

	t.Run("claim save failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().Get(ctx, phone).Return(nil, nil)
		repo.EXPECT().Save(ctx, gomock.Any(), int64(0)).Return(storeDown)

		_, err := newMockedEngine(t, repo).Submit(ctx, phone, in)

		require.Error(t, err)
		assert.ErrorIs(t, err, storeDown)
		assert.Contains(t, err.Error(), "failed to save checkpoint")
	})

	t.Run("reset failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().Delete(ctx, phone).Return(false, storeDown)

		existed, err := newMockedEngine(t, repo).Reset(ctx, phone)

		assert.ErrorIs(t, err, storeDown)
		assert.False(t, existed)
	})

	t.Run("stale listing failure", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().ListStale(ctx, gomock.Any(), 5).Return(nil, storeDown)

		n, err := newMockedEngine(t, repo).RecoverStale(ctx, 5)

		assert.ErrorIs(t, err, storeDown)
		assert.Zero(t, n)
	})

	t.Run("stale run fails to load", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		stale := conversation.NewCheckpoint(phone, time.Now().Add(-time.Hour))
		repo := conversationMocks.NewMockRepository(ctrl)
		repo.EXPECT().ListStale(ctx, gomock.Any(), 5).Return([]*conversation.Checkpoint{stale}, nil)
		repo.EXPECT().Get(ctx, phone).Return(nil, storeDown)

		n, err := newMockedEngine(t, repo).RecoverStale(ctx, 5)

		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
