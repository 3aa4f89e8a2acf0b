package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stratagem-engine/stratagem/pkg/game"
	"github.com/stratagem-engine/stratagem/pkg/savegame"
	"github.com/stratagem-engine/stratagem/pkg/session"
)

func newTestSnapshot(name string, savedAt time.Time) *savegame.Snapshot {
	world := game.NewWorld(
		game.Faction{Name: "red", Alive: true},
		game.Faction{Name: "blue", Alive: true},
	)
	world.Units = []game.Unit{{ID: 1, Faction: 0, X: 3, Y: 4}}

	return &savegame.Snapshot{
		SessionID:   uuid.New(),
		Name:        name,
		CreatedAt:   savedAt.Add(-time.Hour),
		SavedAt:     savedAt,
		World:       world,
		Initial:     world.Clone(),
		Controllers: []session.Controller{session.ControllerHuman, session.ControllerComputer},
	}
}

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saves.db")
	repo, err := NewSQLiteRepository(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close(ctx)
	})
	return repo
}

func TestSQLiteRepository_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	snapshot := newTestSnapshot("campaign", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	loaded, err := repo.LoadSnapshot(ctx, snapshot.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snapshot.SessionID, loaded.SessionID)
	assert.Equal(t, snapshot.Name, loaded.Name)
	assert.Equal(t, snapshot.World, loaded.World)
	assert.Equal(t, snapshot.Controllers, loaded.Controllers)
}

func TestSQLiteRepository_SaveOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	snapshot := newTestSnapshot("campaign", time.Now().UTC().Truncate(time.Second))
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	snapshot.Name = "campaign (autosave)"
	snapshot.World.TurnIndex = 5
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	loaded, err := repo.LoadSnapshot(ctx, snapshot.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "campaign (autosave)", loaded.Name)
	assert.Equal(t, 5, loaded.World.Turn())

	summaries, err := repo.ListSaves(ctx)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}

func TestSQLiteRepository_ListOrdersByMostRecent(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	base := time.Now().UTC().Truncate(time.Second)
	older := newTestSnapshot("older", base.Add(-time.Minute))
	newer := newTestSnapshot("newer", base)
	require.NoError(t, repo.SaveSnapshot(ctx, older))
	require.NoError(t, repo.SaveSnapshot(ctx, newer))

	summaries, err := repo.ListSaves(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "newer", summaries[0].Name)
	assert.Equal(t, "older", summaries[1].Name)
	assert.Equal(t, newer.SessionID, summaries[0].SessionID)
}

func TestSQLiteRepository_LoadMissing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.LoadSnapshot(ctx, uuid.New())
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestSQLiteRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	snapshot := newTestSnapshot("campaign", time.Now().UTC())
	require.NoError(t, repo.SaveSnapshot(ctx, snapshot))

	require.NoError(t, repo.DeleteSave(ctx, snapshot.SessionID))

	_, err := repo.LoadSnapshot(ctx, snapshot.SessionID)
	assert.True(t, IsNotFound(err))

	err = repo.DeleteSave(ctx, snapshot.SessionID)
	assert.True(t, IsNotFound(err))
}
