package indexer

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedClosure(t *testing.T, db *gorm.DB, sequence uint64, closedAt int64) {
	t.Helper()
	row := &StakeClosure{
		ID:                uuid.New(),
		Sequence:          sequence,
		Owner:             indexerTestAddress(0x07).String(),
		Scope:             "scheduled",
		ElapsedDays:       365,
		PrincipalReturned: "1000000",
		YieldReturned:     "1234",
		Payout:            "1001234",
		Penalty:           "0",
		SharesBurned:      "1200000",
		Burned:            "0",
		PoolCredited:      "0",
		TreasuryPaid:      "0",
		ClosedAt:          closedAt,
	}
	row.Digest = receiptDigest("stake.closed", row.Owner, row.Payout)
	require.NoError(t, db.Create(row).Error)
}

func TestExportClosuresWritesDailyFile(t *testing.T) {
	db := setupTestDB(t)
	ix, err := New(Config{DB: db, Source: &stubSource{}})
	require.NoError(t, err)

	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	seedClosure(t, db, 1, day.Add(2*time.Hour).Unix())
	seedClosure(t, db, 2, day.Add(23*time.Hour).Unix())
	seedClosure(t, db, 3, day.Add(25*time.Hour).Unix())

	dir := t.TempDir()
	path, count, err := ix.ExportClosures(dir, day.Add(9*time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, filepath.Join(dir, "closures_20240305.parquet"), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestExportClosuresEmptyDayStillWritesFile(t *testing.T) {
	db := setupTestDB(t)
	ix, err := New(Config{DB: db, Source: &stubSource{}})
	require.NoError(t, err)

	dir := t.TempDir()
	path, count, err := ix.ExportClosures(dir, time.Date(2024, time.March, 6, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, 0, count)
	_, err = os.Stat(path)
	require.NoError(t, err)
}
