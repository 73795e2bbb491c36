package storage

import (
	"testing"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestETFRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewETFRepository(db)
	ctx := testContext(t)

	listedAt := time.Date(2003, 6, 25, 0, 0, 0, 0, time.UTC)
	etf := &models.ETF{
		Symbol:   "ITETF1",
		Name:     "Yuanta Taiwan 50",
		Provider: "Yuanta",
		Type:     "equity",
		ListedAt: &listedAt,
	}
	require.NoError(t, repo.Create(ctx, etf))
	t.Cleanup(func() { _ = repo.Delete(testContext(t), "ITETF1") })

	got, err := repo.GetBySymbol(ctx, "ITETF1")
	require.NoError(t, err)
	assert.Equal(t, "Yuanta Taiwan 50", got.Name)
	assert.Equal(t, "Yuanta", got.Provider)
	require.NotNil(t, got.ListedAt)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	// Registering the same symbol again is a conflict, not an overwrite.
	err = repo.Create(ctx, &models.ETF{Symbol: "ITETF1", Name: "Impostor"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateKey))

	got, err = repo.GetBySymbol(ctx, "ITETF1")
	require.NoError(t, err)
	assert.Equal(t, "Yuanta Taiwan 50", got.Name)
}

func TestETFRepository_GetUnknownIsNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewETFRepository(db)

	_, err := repo.GetBySymbol(testContext(t), "NO-SUCH")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestETFRepository_UpsertMetadata(t *testing.T) {
	db := setupTestDB(t)
	repo := NewETFRepository(db)
	ctx := testContext(t)

	require.NoError(t, repo.UpsertMetadata(ctx, &models.ETF{Symbol: "ITETF2", Name: "First Name"}))
	t.Cleanup(func() { _ = repo.Delete(testContext(t), "ITETF2") })

	require.NoError(t, repo.UpsertMetadata(ctx, &models.ETF{Symbol: "ITETF2", Name: "Refreshed Name", Provider: "Fubon"}))

	got, err := repo.GetBySymbol(ctx, "ITETF2")
	require.NoError(t, err)
	assert.Equal(t, "Refreshed Name", got.Name)
	assert.Equal(t, "Fubon", got.Provider)
}

func TestETFRepository_DeleteCascadesToHistory(t *testing.T) {
	db := setupTestDB(t)
	etfs := NewETFRepository(db)
	holdings := NewHoldingRepository(db)
	ctx := testContext(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	require.NoError(t, etfs.UpsertMetadata(ctx, &models.ETF{Symbol: "ITETF3", Name: "Doomed"}))
	require.NoError(t, holdings.InsertSnapshot(ctx, []models.Holding{
		testHoldingRow("ITETF3", date, "TW0002330008", "TSMC"),
	}))

	require.NoError(t, etfs.Delete(ctx, "ITETF3"))

	exists, err := holdings.SnapshotExists(ctx, "ITETF3", date)
	require.NoError(t, err)
	assert.False(t, exists, "deleting the registry entry must delete its snapshots")

	// A second delete finds nothing.
	err = etfs.Delete(ctx, "ITETF3")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}
