package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, store.Connect())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_CreateTableAndInsert(t *testing.T) {
	store := newTestStore(t)

	schema := `CREATE TABLE IF NOT EXISTS test_table (
		id INTEGER PRIMARY KEY,
		name TEXT,
		value INTEGER
	)`
	require.NoError(t, store.CreateTable(schema))

	records := []map[string]any{
		{"id": 1, "name": "foo", "value": 42},
		{"id": 2, "name": "bar", "value": 99},
	}
	require.NoError(t, store.BatchInsert(context.Background(), HistoryDatabase, "test_table", records))

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM test_table").Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSQLiteStore_BatchInsertEmpty(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.BatchInsert(context.Background(), HistoryDatabase, "missing", nil))
}

func TestSQLiteStore_NotConnected(t *testing.T) {
	store := NewSQLiteStore("unused.db")

	assert.Error(t, store.CreateTable(HistorySchema))
	assert.Error(t, store.BatchInsert(context.Background(), HistoryDatabase, HistoryTable, []map[string]any{{"a": 1}}))
	_, err := store.RecentDownloads(context.Background(), 5)
	assert.Error(t, err)
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_BatchInsertRollsBack(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateTable(`CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`))

	records := []map[string]any{
		{"id": 1, "name": "ok"},
		{"id": 2, "name": nil},
	}
	require.Error(t, store.BatchInsert(context.Background(), HistoryDatabase, "t", records))

	var count int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Zero(t, count)
}

func TestSQLiteStore_RecentDownloads(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateTable(HistorySchema))

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, title := range []string{"First", "Second", "Third"} {
		entry := HistoryEntry{
			Title:        title,
			Provider:     "catalogue",
			Format:       "PDF",
			URL:          "https://mirror.example/" + title,
			DispatchedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, store.BatchInsert(context.Background(), HistoryDatabase, HistoryTable, []map[string]any{entry.record()}))
	}

	entries, err := store.RecentDownloads(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Third", entries[0].Title)
	assert.Equal(t, "Second", entries[1].Title)
	assert.True(t, entries[0].DispatchedAt.Equal(base.Add(2*time.Hour)))
	assert.Equal(t, "catalogue", entries[0].Provider)
	assert.Empty(t, entries[0].Reference)
}
