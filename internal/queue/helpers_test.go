package queue

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/persistq/internal/store"
)

func openTestDB(t *testing.T, path string) *store.DB {
	t.Helper()
	db, err := store.Open(path, store.Options{Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "queue.db")
}

// newTestQueue opens a queue on a fresh database file.
func newTestQueue(t *testing.T, opts Options) *Queue {
	t.Helper()
	return newTestQueueAt(t, testDBPath(t), opts)
}

func newTestQueueAt(t *testing.T, path string, opts Options) *Queue {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	q, err := New(context.Background(), openTestDB(t, path), opts)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func mustPut(t *testing.T, q *Queue, item any) int64 {
	t.Helper()
	id, err := q.Put(context.Background(), item)
	require.NoError(t, err)
	return id
}

func mustGet(t *testing.T, q *Queue) any {
	t.Helper()
	v, err := q.GetNowait(context.Background())
	require.NoError(t, err)
	return v
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
