package persist

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TapeDeck/internal/domain/models"
	"TapeDeck/pkg/logger"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return NewFileStore(filepath.Join(t.TempDir(), "state.json"), l)
}

func TestSnapshotRoundtrip(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	snap := &models.Snapshot{
		Watchlist:   []string{"AAPL", "TSLA"},
		StrategyID:  "macd-cross",
		Params:      models.StrategyParams{MACDThreshold: 0.002, BBPeriod: 20, BBDev: 2, Lookback: 200},
		TradeAmount: 500,
		SavedAt:     time.Now().Truncate(time.Second),
	}
	require.NoError(t, fs.Save(ctx, snap))

	loaded, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Watchlist, loaded.Watchlist)
	assert.Equal(t, snap.StrategyID, loaded.StrategyID)
	assert.Equal(t, snap.Params, loaded.Params)
	assert.Equal(t, snap.TradeAmount, loaded.TradeAmount)
}

func TestLoadMissingStateIsNotFound(t *testing.T) {
	fs := newTestStore(t)
	_, err := fs.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptStateFails(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, os.WriteFile(fs.statePath, []byte("{not json"), 0o644))

	_, err := fs.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestSaveCreatesParentDirs(t *testing.T) {
	l, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "deeper", "state.json"), l)

	require.NoError(t, fs.Save(context.Background(), &models.Snapshot{SavedAt: time.Now()}))
	_, err = fs.Load(context.Background())
	assert.NoError(t, err)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	fs := newTestStore(t)
	require.NoError(t, fs.Save(context.Background(), &models.Snapshot{SavedAt: time.Now()}))

	_, err := os.Stat(fs.statePath + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestScanRoundtripHonorsMaxAge(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	scan := &models.ScanState{
		Passed:    []models.Mover{{Symbol: "GME", ChangePct: 12.5, Passed: true}},
		All:       []models.Mover{{Symbol: "GME"}, {Symbol: "AMC"}},
		UpdatedAt: time.Now(),
	}
	require.NoError(t, fs.SaveScan(ctx, scan))

	loaded, err := fs.LoadScan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Len(t, loaded.All, 2)
	assert.Equal(t, "GME", loaded.Passed[0].Symbol)
}

func TestLoadScanExpiredIsNotFound(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	scan := &models.ScanState{UpdatedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, fs.SaveScan(ctx, scan))

	_, err := fs.LoadScan(ctx, time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanCacheDoesNotClobberState(t *testing.T) {
	fs := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, &models.Snapshot{StrategyID: "macd-cross", SavedAt: time.Now()}))
	require.NoError(t, fs.SaveScan(ctx, &models.ScanState{UpdatedAt: time.Now()}))

	snap, err := fs.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "macd-cross", snap.StrategyID)
}
