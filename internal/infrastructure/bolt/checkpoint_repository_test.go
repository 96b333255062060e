package bolt

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

func openTemp(t *testing.T) *CheckpointRepository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "conversations.bolt"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func running(identity string, updated time.Time) *conversation.Checkpoint {
	cp := conversation.NewCheckpoint(identity, updated)
	cp.Status = conversation.StatusRunning
	cp.NextStep = "understand"
	return cp
}

func TestCheckpointRepository_SaveAndGet(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()

	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	cp := running("a", time.Now())
	cp.State.AppendHistory(conversation.RoleUser, "hello")
	require.NoError(t, repo.Save(ctx, cp, 0))
	assert.Equal(t, int64(1), cp.Version)

	assert.ErrorIs(t, repo.Save(ctx, cp.Clone(), 0), conversation.ErrVersionConflict)
	require.NoError(t, repo.Save(ctx, cp, 1))

	got, err = repo.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, cp.Epoch, got.Epoch)
	assert.Equal(t, []string{"User: hello"}, got.State.Transcript())
}

func TestCheckpointRepository_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conversations.bolt")
	ctx := context.Background()

	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, running("a", time.Now()), 0))
	require.NoError(t, repo.RecordEffect(ctx, "a", "k1"))
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	ok, err := repo.HasEffect(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheckpointRepository_DeleteAndListStale(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	require.NoError(t, repo.Save(ctx, running("old", old), 0))
	require.NoError(t, repo.Save(ctx, running("fresh", time.Now()), 0))
	require.NoError(t, repo.RecordEffect(ctx, "old", "k-old"))
	require.NoError(t, repo.RecordEffect(ctx, "fresh", "k-fresh"))

	stale, err := repo.ListStale(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].Identity)

	existed, err := repo.Delete(ctx, "old")
	require.NoError(t, err)
	assert.True(t, existed)
	got, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, _ := repo.HasEffect(ctx, "k-old")
	assert.False(t, ok)
	ok, _ = repo.HasEffect(ctx, "k-fresh")
	assert.True(t, ok)

	existed, err = repo.Delete(ctx, "old")
	require.NoError(t, err)
	assert.False(t, existed)

	// a deleted identity starts over at version zero
	require.NoError(t, repo.Save(ctx, running("old", time.Now()), 0))
}

func TestCheckpointRepository_PruneEffects(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	clock := time.Now().Add(-2 * time.Hour)
	repo.now = func() time.Time { return clock }

	require.NoError(t, repo.RecordEffect(ctx, "a", "old"))
	clock = time.Now()
	require.NoError(t, repo.RecordEffect(ctx, "a", "new"))

	n, err := repo.PruneEffects(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ok, _ := repo.HasEffect(ctx, "old")
	assert.False(t, ok)
	ok, _ = repo.HasEffect(ctx, "new")
	assert.True(t, ok)
}

func TestCheckpointRepository_EffectLedgerPerIdentity(t *testing.T) {
	repo := openTemp(t)
	ctx := context.Background()
	clock := time.Now().Add(-2 * time.Hour)
	repo.now = func() time.Time { return clock }

	require.NoError(t, repo.RecordEffect(ctx, "a", "a-old"))
	clock = time.Now()
	require.NoError(t, repo.RecordEffect(ctx, "a", "a-new"))
	require.NoError(t, repo.RecordEffect(ctx, "a", "a-new"))
	require.NoError(t, repo.RecordEffect(ctx, "b", "b-new"))

	a, err := repo.ledger("a")
	require.NoError(t, err)
	assert.Len(t, a, 2)
	b, err := repo.ledger("b")
	require.NoError(t, err)
	assert.Len(t, b, 1)

	n, err := repo.PruneEffects(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	a, err = repo.ledger("a")
	require.NoError(t, err)
	assert.Len(t, a, 1)
	assert.Contains(t, a, "a-new")

	_, err = repo.Delete(ctx, "a")
	require.NoError(t, err)
	ok, _ := repo.HasEffect(ctx, "a-new")
	assert.False(t, ok)
	ok, _ = repo.HasEffect(ctx, "b-new")
	assert.True(t, ok)

	idx, err := repo.index(ledgerIndex)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"b": {}}, idx)

	// an emptied ledger leaves the index
	n, err = repo.PruneEffects(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	idx, err = repo.index(ledgerIndex)
	require.NoError(t, err)
	assert.Empty(t, idx)
}
