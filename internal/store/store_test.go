package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	totals := map[string]int64{"100": 3600, "200": 42}
	history := []string{"[2024-04-01 12:00:00] 🎙️ alice が 雑談 に参加しました"}
	stays := map[string]string{"g1": "c1"}

	require.NoError(t, st.Save(ctx, DatasetTotals, totals))
	require.NoError(t, st.Save(ctx, DatasetHistory, history))
	require.NoError(t, st.Save(ctx, DatasetStays, stays))

	// A fresh store over the same directory simulates a process restart
	st2, err := NewFileStore(dir)
	require.NoError(t, err)

	gotTotals := make(map[string]int64)
	require.NoError(t, st2.Load(ctx, DatasetTotals, &gotTotals))
	assert.Equal(t, totals, gotTotals)

	var gotHistory []string
	require.NoError(t, st2.Load(ctx, DatasetHistory, &gotHistory))
	assert.Equal(t, history, gotHistory)

	gotStays := make(map[string]string)
	require.NoError(t, st2.Load(ctx, DatasetStays, &gotStays))
	assert.Equal(t, stays, gotStays)
}

func TestFileStoreLoadMissing(t *testing.T) {
	st, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	totals := map[string]int64{}
	require.NoError(t, st.Load(context.Background(), DatasetTotals, &totals))
	assert.Empty(t, totals)
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	path := filepath.Join(dir, DatasetTotals+".json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	// Corrupt data falls back to the caller's default instead of failing
	totals := map[string]int64{}
	require.NoError(t, st.Load(context.Background(), DatasetTotals, &totals))
	assert.Empty(t, totals)
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	dir := t.TempDir()
	st, err := NewFileStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, st.Save(ctx, DatasetStays, map[string]string{"g1": "c1"}))
	require.NoError(t, st.Save(ctx, DatasetStays, map[string]string{"g1": "c2"}))

	stays := make(map[string]string)
	require.NoError(t, st.Load(ctx, DatasetStays, &stays))
	assert.Equal(t, map[string]string{"g1": "c2"}, stays)

	// The temp file from the atomic-replace dance never lingers
	_, err = os.Stat(filepath.Join(dir, DatasetStays+".json.tmp"))
	assert.True(t, os.IsNotExist(err))
}
