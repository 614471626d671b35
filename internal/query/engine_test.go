package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myk-org/hooktrail/internal/logstore"
	"github.com/myk-org/hooktrail/internal/model"
	"github.com/myk-org/hooktrail/pkg/errors"
)

func newTestEngine(t *testing.T, scanCap int) (*Engine, *logstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := logstore.Open(logstore.Config{Dir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewEngine(store, scanCap), store, dir
}

func appendN(t *testing.T, store *logstore.Store, n int, level model.Level, hookID string) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, store.Append(model.LogRecord{
			Timestamp: model.Now(),
			Level:     level,
			Message:   fmt.Sprintf("%s record %d", level, i),
			HookID:    hookID,
		}))
	}
}

func TestQuerySoundness(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)

	appendN(t, store, 10, model.LevelError, "hook-a")
	appendN(t, store, 90, model.LevelInfo, "hook-b")

	res, err := e.Query(context.Background(), model.Filter{Level: "ERROR", Limit: 50})
	require.NoError(t, err)

	assert.Len(t, res.Entries, 10)
	assert.False(t, res.IsPartialScan)
	assert.Equal(t, 100, res.EntriesProcessed)
	for _, rec := range res.Entries {
		assert.Equal(t, model.LevelError, rec.Level)
		assert.Equal(t, "hook-a", rec.HookID)
	}
}

func TestQueryNewestFirst(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 20, model.LevelInfo, "hook-a")

	res, err := e.Query(context.Background(), model.Filter{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)

	assert.Equal(t, "INFO record 19", res.Entries[0].Message)
	assert.Equal(t, "INFO record 15", res.Entries[4].Message)
}

func TestQueryPagination(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 20, model.LevelInfo, "hook-a")

	res, err := e.Query(context.Background(), model.Filter{Limit: 5, Offset: 5})
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)
	assert.Equal(t, "INFO record 14", res.Entries[0].Message)

	// Offset past the end yields an empty page, not an error.
	res, err = e.Query(context.Background(), model.Filter{Limit: 5, Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
}

func TestQueryAscendingOrder(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 10, model.LevelInfo, "hook-a")

	res, err := e.QueryAscending(context.Background(), model.Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, res.Entries, 10)
	assert.Equal(t, "INFO record 0", res.Entries[0].Message)
	assert.Equal(t, "INFO record 9", res.Entries[9].Message)
}

func TestQueryAcrossRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := logstore.Open(logstore.Config{Dir: dir, MaxSizeMB: 1, MaxBackups: 10})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	e := NewEngine(store, 0)

	// Pad records so the store rotates at least once.
	pad := make([]byte, 8*1024)
	for i := range pad {
		pad[i] = 'z'
	}
	for i := 0; i < 300; i++ {
		require.NoError(t, store.Append(model.LogRecord{
			Timestamp: model.Now(),
			Level:     model.LevelInfo,
			Message:   fmt.Sprintf("bulk %d %s", i, pad),
			HookID:    "hook-a",
		}))
	}

	files, err := store.Files()
	require.NoError(t, err)
	require.Greater(t, len(files), 1, "expected at least one rotation")

	res, err := e.Query(context.Background(), model.Filter{Limit: 5})
	require.NoError(t, err)
	require.Len(t, res.Entries, 5)
	assert.Contains(t, res.Entries[0].Message, "bulk 299")
}

func TestScanCapPartialScan(t *testing.T) {
	e, store, _ := newTestEngine(t, 50)

	appendN(t, store, 100, model.LevelInfo, "hook-a")

	res, err := e.Query(context.Background(), model.Filter{Level: "ERROR", Limit: 10})
	require.NoError(t, err)

	assert.True(t, res.IsPartialScan)
	assert.Equal(t, 50, res.EntriesProcessed)
	assert.Empty(t, res.Entries)
}

func TestMalformedLinesSkippedAndCounted(t *testing.T) {
	e, store, dir := newTestEngine(t, 0)

	appendN(t, store, 3, model.LevelInfo, "hook-a")

	// Corrupt lines injected directly into the active file.
	f, err := os.OpenFile(filepath.Join(dir, "webhook.log"), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n{\"broken\":\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	appendN(t, store, 2, model.LevelInfo, "hook-a")

	res, err := e.Query(context.Background(), model.Filter{Limit: 100})
	require.NoError(t, err)

	assert.Len(t, res.Entries, 5)
	assert.Equal(t, 2, res.MalformedLines)
	assert.Equal(t, 7, res.EntriesProcessed)
}

func TestExportCapsLimit(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 20, model.LevelInfo, "hook-a")

	// A requested limit of 100000 is capped server-side to 50000.
	res, err := e.Export(context.Background(), model.Filter{Limit: 100000, Offset: 30})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 20, "offset must be ignored for exports")
	assert.False(t, res.IsPartialScan)
}

func TestQueryLimitClamped(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 5, model.LevelInfo, "hook-a")

	res, err := e.Query(context.Background(), model.Filter{Limit: 99999})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 5)

	// Zero limit falls back to the default page size.
	res, err = e.Query(context.Background(), model.Filter{})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 5)
}

func TestHookRecords(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)

	appendN(t, store, 4, model.LevelInfo, "hook-a")
	appendN(t, store, 2, model.LevelInfo, "hook-b")

	records, err := e.HookRecords(context.Background(), "hook-a")
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "INFO record 0", records[0].Message)

	_, err = e.HookRecords(context.Background(), "hook-z")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeHookNotFound))

	_, err = e.HookRecords(context.Background(), "")
	assert.Error(t, err)
}

func TestQueryCancelledContext(t *testing.T) {
	e, store, _ := newTestEngine(t, 0)
	appendN(t, store, 5, model.LevelInfo, "hook-a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Query(ctx, model.Filter{Limit: 5})
	assert.ErrorIs(t, err, context.Canceled)
}
