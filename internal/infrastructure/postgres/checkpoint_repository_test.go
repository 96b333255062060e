package postgres

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orhanxakarsu/music-agent/internal/domain/conversation"
)

func sampleCheckpoint() *conversation.Checkpoint {
	cp := conversation.NewCheckpoint("905551112233", time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	cp.Status = conversation.StatusSuspended
	cp.NextStep = "await_selection"
	cp.State.Stage = conversation.StageAwaitingMusicSelection
	cp.State.Music.SetCandidates([]conversation.Candidate{{ID: "a"}, {ID: "b"}})
	cp.State.AppendHistory(conversation.RoleUser, "make a song")
	cp.MarkConsumed("m1")
	return cp
}

func TestCheckpointCodec(t *testing.T) {
	cp := sampleCheckpoint()
	cp.Input = &conversation.Input{Text: "2", MessageID: "m2"}

	row, err := encodeCheckpoint(cp)
	require.NoError(t, err)
	assert.Equal(t, "suspended", row.Status)
	assert.JSONEq(t, `["m1"]`, string(row.Consumed))

	got, err := decodeCheckpoint(row)
	require.NoError(t, err)
	assert.Equal(t, cp.Epoch, got.Epoch)
	assert.Equal(t, cp.Input, got.Input)
	assert.Equal(t, cp.State.Music.Candidates, got.State.Music.Candidates)
	assert.True(t, got.HasConsumed("m1"))

	cp.Input = nil
	row, err = encodeCheckpoint(cp)
	require.NoError(t, err)
	assert.Nil(t, row.Input)
}

func TestMigrationFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"002_b.sql": {Data: []byte("SELECT 2;")},
		"001_a.sql": {Data: []byte("SELECT 1;")},
		"README.md": {Data: []byte("notes")},
		"sub/3.sql": {Data: []byte("SELECT 3;")},
	}
	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)
}

// TestCheckpointRepository_Postgres runs against a real database when
// MUSICBOT_TEST_DATABASE_URL is set.
func TestCheckpointRepository_Postgres(t *testing.T) {
	dsn := os.Getenv("MUSICBOT_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("MUSICBOT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, dsn, 2)
	require.NoError(t, err)
	defer pool.Close()
	_, err = RunMigrations(ctx, pool, "../../migrations", zerolog.Nop())
	require.NoError(t, err)

	repo := NewCheckpointRepository(pool)
	cp := sampleCheckpoint()
	cp.Identity = "test-" + uuid.NewString()
	cp.State.Identity = cp.Identity
	defer func() { _, _ = repo.Delete(ctx, cp.Identity) }()

	require.NoError(t, repo.Save(ctx, cp, 0))
	assert.Equal(t, int64(1), cp.Version)
	assert.ErrorIs(t, repo.Save(ctx, cp.Clone(), 0), conversation.ErrVersionConflict)

	got, err := repo.Get(ctx, cp.Identity)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cp.NextStep, got.NextStep)

	got.Status = conversation.StatusRunning
	got.UpdatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Save(ctx, got, 1))
	stale, err := repo.ListStale(ctx, time.Now().Add(-time.Minute), 1000)
	require.NoError(t, err)
	found := false
	for _, s := range stale {
		found = found || s.Identity == cp.Identity
	}
	assert.True(t, found)

	require.NoError(t, repo.RecordEffect(ctx, cp.Identity, cp.Identity+"-k"))
	require.NoError(t, repo.RecordEffect(ctx, cp.Identity, cp.Identity+"-k"))
	ok, err := repo.HasEffect(ctx, cp.Identity+"-k")
	require.NoError(t, err)
	assert.True(t, ok)

	existed, err := repo.Delete(ctx, cp.Identity)
	require.NoError(t, err)
	assert.True(t, existed)
	ok, err = repo.HasEffect(ctx, cp.Identity+"-k")
	require.NoError(t, err)
	assert.False(t, ok)
}
