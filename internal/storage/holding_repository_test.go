package storage

import (
	"testing"
	"time"

	apperrors "github.com/buggu-git/taiwan-tools/internal/errors"
	"github.com/buggu-git/taiwan-tools/internal/models"
	"github.com/buggu-git/taiwan-tools/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHoldingRow(etfSymbol string, tradeDate time.Time, isin, name string) models.Holding {
	return models.Holding{
		ETFSymbol:      etfSymbol,
		TradeDate:      tradeDate,
		ISIN:           &isin,
		SecurityName:   name,
		SharesHeld:     decimal.RequireFromString("12345.6789"),
		MarketValueTWD: decimal.RequireFromString("98765432.10"),
		WeightPct:      decimal.RequireFromString("9.123456"),
		ScrapedAt:      time.Now().UTC(),
	}
}

func TestHoldingRepository_SnapshotRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	registerTestETF(t, db, "ITRT1")
	repo := NewHoldingRepository(db)
	ctx := testContext(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	rank := 1
	ranked := testHoldingRow("ITRT1", date, "TW0002330008", "TSMC")
	ranked.Rank = &rank
	unranked := models.Holding{
		ETFSymbol:    "ITRT1",
		TradeDate:    date,
		SecurityName: "Unranked Security",
		SharesHeld:   decimal.RequireFromString("10"),
		WeightPct:    decimal.RequireFromString("0.5"),
		ScrapedAt:    time.Now().UTC(),
	}

	// Insert unranked first to prove the read order is not insertion order.
	require.NoError(t, repo.InsertSnapshot(ctx, []models.Holding{unranked, ranked}))

	exists, err := repo.SnapshotExists(ctx, "ITRT1", date)
	require.NoError(t, err)
	assert.True(t, exists)

	got, err := repo.GetSnapshot(ctx, "ITRT1", date)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// NULL ranks sort after ranked rows.
	assert.Equal(t, "TSMC", got[0].SecurityName)
	assert.Equal(t, "Unranked Security", got[1].SecurityName)

	// NUMERIC columns preserve the exact values, not float approximations.
	assert.True(t, got[0].SharesHeld.Equal(decimal.RequireFromString("12345.6789")),
		"shares = %s", got[0].SharesHeld)
	assert.True(t, got[0].MarketValueTWD.Equal(decimal.RequireFromString("98765432.10")),
		"market value = %s", got[0].MarketValueTWD)
	assert.True(t, got[0].WeightPct.Equal(decimal.RequireFromString("9.123456")),
		"weight = %s", got[0].WeightPct)

	require.NotNil(t, got[0].ISIN)
	assert.Equal(t, "TW0002330008", *got[0].ISIN)
	assert.Nil(t, got[1].ISIN)
	assert.Equal(t, "2026-08-27", got[0].TradeDate.Format(types.DateFormat))
}

func TestHoldingRepository_DuplicateSnapshotRejected(t *testing.T) {
	db := setupTestDB(t)
	registerTestETF(t, db, "ITRT2")
	repo := NewHoldingRepository(db)
	ctx := testContext(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	row := testHoldingRow("ITRT2", date, "TW0002330008", "TSMC")
	require.NoError(t, repo.InsertSnapshot(ctx, []models.Holding{row}))

	// Same (etf, trade date, security) again: the unique constraint rejects
	// it as an already-ingested snapshot.
	again := testHoldingRow("ITRT2", date, "TW0002330008", "TSMC")
	again.WeightPct = decimal.RequireFromString("1.0")
	err := repo.InsertSnapshot(ctx, []models.Holding{again})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAlreadyIngested))

	// The original rows stand.
	got, err := repo.GetSnapshot(ctx, "ITRT2", date)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].WeightPct.Equal(decimal.RequireFromString("9.123456")))
}

func TestHoldingRepository_InsertIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	registerTestETF(t, db, "ITRT3")
	repo := NewHoldingRepository(db)
	ctx := testContext(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	// A duplicated security inside one batch trips the constraint mid-insert;
	// the earlier rows of the batch must roll back with it.
	good := testHoldingRow("ITRT3", date, "TW0002330008", "TSMC")
	dup := testHoldingRow("ITRT3", date, "TW0002330008", "TSMC again")

	err := repo.InsertSnapshot(ctx, []models.Holding{good, dup})
	require.Error(t, err)

	exists, err := repo.SnapshotExists(ctx, "ITRT3", date)
	require.NoError(t, err)
	assert.False(t, exists, "a failed batch must persist no rows")
}

func TestHoldingRepository_ReplaceSnapshotDropsDerivedChanges(t *testing.T) {
	db := setupTestDB(t)
	registerTestETF(t, db, "ITRT4")
	holdings := NewHoldingRepository(db)
	changes := NewChangeRepository(db)
	ctx := testContext(t)
	date := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	require.NoError(t, holdings.InsertSnapshot(ctx, []models.Holding{
		testHoldingRow("ITRT4", date, "TW0002330008", "TSMC"),
	}))
	require.NoError(t, changes.ReplaceForDate(ctx, "ITRT4", date, []models.HoldingChange{{
		ETFSymbol:    "ITRT4",
		TradeDate:    date,
		SecurityID:   "TW0002330008",
		SecurityName: "TSMC",
		ChangeType:   types.ChangeAdded,
		WeightDelta:  decimal.RequireFromString("9.123456"),
		SharesDelta:  decimal.RequireFromString("12345.6789"),
	}}))

	require.NoError(t, holdings.ReplaceSnapshot(ctx, "ITRT4", date, []models.Holding{
		testHoldingRow("ITRT4", date, "TW0002454006", "MediaTek"),
	}))

	got, err := holdings.GetSnapshot(ctx, "ITRT4", date)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "MediaTek", got[0].SecurityName)

	// The change rows were computed from rows that no longer exist.
	stale, err := changes.GetByETFAndDate(ctx, "ITRT4", date)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestHoldingRepository_LatestTradeDates(t *testing.T) {
	db := setupTestDB(t)
	registerTestETF(t, db, "ITRT5")
	repo := NewHoldingRepository(db)
	ctx := testContext(t)

	dates := []time.Time{
		time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC),
	}
	for _, d := range dates {
		require.NoError(t, repo.InsertSnapshot(ctx, []models.Holding{
			testHoldingRow("ITRT5", d, "TW0002330008", "TSMC"),
		}))
	}

	latest, err := repo.LatestTradeDates(ctx, "ITRT5", nil, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "2026-08-27", latest[0].Format(types.DateFormat))
	assert.Equal(t, "2026-08-26", latest[1].Format(types.DateFormat))

	cutoff := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	bounded, err := repo.LatestTradeDates(ctx, "ITRT5", &cutoff, 2)
	require.NoError(t, err)
	require.Len(t, bounded, 2)
	assert.Equal(t, "2026-08-26", bounded[0].Format(types.DateFormat))
	assert.Equal(t, "2026-08-25", bounded[1].Format(types.DateFormat))
}
