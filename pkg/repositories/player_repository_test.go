package repositories_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/repositories"
)

func TestPlayerRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewPlayerRepository(db, getTestLogger())
	ctx := context.Background()

	handle := uniqueHandle("alice")
	joined := int64(1704067200)
	player := &models.Player{
		PlayerName: handle,
		Name:       strPtr("Alice"),
		Country:    strPtr("US"),
		Joined:     &joined,
	}

	// Create
	require.NoError(t, repo.Create(ctx, player))
	assert.False(t, player.CreatedAt.IsZero())

	// Create again conflicts
	assertStatus(t, repo.Create(ctx, &models.Player{PlayerName: handle}), http.StatusConflict)

	// GetByHandle
	fetched, err := repo.GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Alice", *fetched.Name)
	assert.Nil(t, fetched.LastSyncedAt)

	_, err = repo.GetByHandle(ctx, uniqueHandle("nobody"))
	assertNotFound(t, err)

	// UpsertMany keeps existing values where the incoming row is NULL
	other := uniqueHandle("bob")
	n, err := repo.UpsertMany(ctx, []models.Player{
		{PlayerName: handle, Title: strPtr("GM")},
		{PlayerName: other},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	fetched, err = repo.GetByHandle(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "Alice", *fetched.Name)
	assert.Equal(t, "GM", *fetched.Title)
	assert.Equal(t, joined, *fetched.Joined)

	// MarkSynced and ListDueForResync
	syncedAt := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkSynced(ctx, handle, syncedAt))
	assertNotFound(t, repo.MarkSynced(ctx, uniqueHandle("ghost"), syncedAt))

	due, err := repo.ListDueForResync(ctx, time.Now().Add(-24*time.Hour), 1000)
	require.NoError(t, err)
	var found bool
	for _, p := range due {
		assert.NotEqual(t, other, p.PlayerName, "never-synced players are not due")
		if p.PlayerName == handle {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlayerRepository_UpsertManyKeepsExistingValues(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewPlayerRepository(db, getTestLogger())

	mock.ExpectExec(`INSERT INTO players .* ON CONFLICT \(player_name\) DO UPDATE .*name = COALESCE\(EXCLUDED\.name, players\.name\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.UpsertMany(context.Background(), []models.Player{{PlayerName: "Alice"}, {PlayerName: "bob"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlayerRepository_UpsertManyEmpty(t *testing.T) {
	db, mock := getMockDB(t)
	repo := repositories.NewPlayerRepository(db, getTestLogger())

	n, err := repo.UpsertMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
