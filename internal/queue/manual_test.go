package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/persistq/internal/store"
)

func TestManual_GetKeepsRows(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{ManualCommit: true})
	assert.False(t, q.AutoCommit())

	mustPut(t, q, "a")
	mustPut(t, q, "b")

	assert.Equal(t, "a", mustGet(t, q))
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, int64(1), q.Cursor())

	items, err := q.Items(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestManual_CrashRecoveryRedelivers(t *testing.T) {
	path := testDBPath(t)

	q := newTestQueueAt(t, path, Options{ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	assert.Equal(t, "a", mustGet(t, q))
	require.NoError(t, q.Close())

	// No Done before the restart: a is delivered again, then b.
	q = newTestQueueAt(t, path, Options{ManualCommit: true})
	assert.Equal(t, 2, q.Size())
	assert.Equal(t, int64(0), q.Cursor())
	assert.Equal(t, "a", mustGet(t, q))
	assert.Equal(t, "b", mustGet(t, q))

	_, err := q.GetNowait(context.Background())
	require.ErrorIs(t, err, ErrEmpty)
}

func TestManual_DoneFinalizes(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	q := newTestQueueAt(t, path, Options{ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	mustPut(t, q, "c")
	assert.Equal(t, "a", mustGet(t, q))
	assert.Equal(t, "b", mustGet(t, q))

	removed, err := q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Equal(t, 1, q.Size())

	// A second Done has nothing to finalize.
	removed, err = q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	require.NoError(t, q.Close())

	q = newTestQueueAt(t, path, Options{ManualCommit: true})
	assert.Equal(t, 1, q.Size())
	assert.Equal(t, int64(2), q.Cursor())
	assert.Equal(t, "c", mustGet(t, q))
}

func TestManual_CursorRestoredFromHead(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	auto := newTestQueueAt(t, path, Options{})
	for _, v := range []string{"a", "b", "c", "d"} {
		mustPut(t, auto, v)
	}
	mustGet(t, auto)
	mustGet(t, auto)

	q := newTestQueueAt(t, path, Options{ManualCommit: true})
	assert.Equal(t, int64(2), q.Cursor())

	item, err := q.GetItem(ctx, GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), item.ID)
	assert.Equal(t, "c", item.Value)
}

func TestManual_EmptyCursorIsZero(t *testing.T) {
	q := newTestQueue(t, Options{ManualCommit: true})
	assert.Equal(t, int64(0), q.Cursor())
	assert.Equal(t, 0, q.Size())
}

func TestManual_PeekSkipsDispatched(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	mustGet(t, q)

	item, err := q.Peek(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", item.Value)

	mustGet(t, q)
	_, err = q.Peek(ctx)
	require.ErrorIs(t, err, ErrEmpty)
}

func TestManual_LIFODispatchAndDone(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)

	q := newTestQueueAt(t, path, Options{Policy: store.LIFO, ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	mustPut(t, q, "c")

	assert.Equal(t, "c", mustGet(t, q))
	assert.Equal(t, "b", mustGet(t, q))
	assert.Equal(t, 1, q.Size())

	// A newer item goes to the front even while others are dispatched.
	mustPut(t, q, "d")
	assert.Equal(t, "d", mustGet(t, q))

	removed, err := q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	items, err := q.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a", items[0].Value)
}

func TestManual_LIFOCrashRecovery(t *testing.T) {
	path := testDBPath(t)

	q := newTestQueueAt(t, path, Options{Policy: store.LIFO, ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	assert.Equal(t, "b", mustGet(t, q))
	require.NoError(t, q.Close())

	q = newTestQueueAt(t, path, Options{Policy: store.LIFO, ManualCommit: true})
	assert.Equal(t, "b", mustGet(t, q))
	assert.Equal(t, "a", mustGet(t, q))
}

func TestManual_TargetedGet(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{ManualCommit: true})
	mustPut(t, q, "a")
	mustPut(t, q, "b")
	id := mustPut(t, q, "c")

	item, err := q.GetItem(ctx, GetOptions{ID: id})
	require.NoError(t, err)
	assert.Equal(t, "c", item.Value)
	assert.Equal(t, int64(0), q.Cursor())

	// Already dispatched.
	_, err = q.GetItem(ctx, GetOptions{ID: id})
	require.ErrorIs(t, err, ErrEmpty)

	assert.Equal(t, "a", mustGet(t, q))
	assert.Equal(t, "b", mustGet(t, q))
	_, err = q.GetNowait(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	removed, err := q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)
}

func TestManual_RemoveDispatchedKeepsSize(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{ManualCommit: true})
	id := mustPut(t, q, "a")
	mustPut(t, q, "b")
	mustGet(t, q)
	assert.Equal(t, 1, q.Size())

	ok, err := q.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, q.Size())
}

func TestDone_NoopInAutoCommit(t *testing.T) {
	q := newTestQueue(t, Options{})
	mustPut(t, q, "a")

	removed, err := q.Done(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
	assert.Equal(t, 1, q.Size())
}

func TestManual_UniqueBlocksDuplicateUntilDone(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{Policy: store.Unique, ManualCommit: true})
	mustPut(t, q, "job")
	mustGet(t, q)

	id, err := q.Put(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, NotInserted, id)

	_, err = q.Done(ctx)
	require.NoError(t, err)

	id, err = q.Put(ctx, "job")
	require.NoError(t, err)
	assert.Greater(t, id, NotInserted)
}

func TestManual_LIFOManyUnfinalized(t *testing.T) {
	const n = 500
	ctx := context.Background()
	q := newTestQueue(t, Options{Policy: store.LIFO, ManualCommit: true})
	for i := 0; i < n; i++ {
		mustPut(t, q, i)
	}

	for i := n - 1; i >= 0; i-- {
		require.Equal(t, float64(i), mustGet(t, q))
	}
	_, err := q.GetNowait(ctx)
	require.ErrorIs(t, err, ErrEmpty)
	_, err = q.Peek(ctx)
	require.ErrorIs(t, err, ErrEmpty)

	removed, err := q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(n), removed)

	items, err := q.Items(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestManual_InstancesSharingDBKeepSeparateClaims(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testDBPath(t))

	first, err := New(ctx, db, Options{Policy: store.LIFO, ManualCommit: true, Logger: discardLogger()})
	require.NoError(t, err)
	defer first.Close()
	second, err := New(ctx, db, Options{Policy: store.LIFO, ManualCommit: true, Logger: discardLogger()})
	require.NoError(t, err)
	defer second.Close()

	mustPut(t, first, "a")
	mustPut(t, first, "b")

	assert.Equal(t, "b", mustGet(t, first))
	// The second instance has claimed nothing and still sees b.
	assert.Equal(t, "b", mustGet(t, second))

	removed, err := first.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	// Finalizing b elsewhere leaves nothing for second's claim to delete.
	removed, err = second.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	assert.Equal(t, "a", mustGet(t, first))
}

func TestManual_RemoveClaimedItem(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t, Options{Policy: store.LIFO, ManualCommit: true})
	mustPut(t, q, "a")
	id := mustPut(t, q, "b")

	assert.Equal(t, "b", mustGet(t, q))
	ok, err := q.Remove(ctx, id)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, q.Size())

	removed, err := q.Done(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)

	assert.Equal(t, "a", mustGet(t, q))
}

func TestManual_CloseReleasesClaimsOnSharedDB(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testDBPath(t))

	q, err := New(ctx, db, Options{Policy: store.LIFO, ManualCommit: true, Logger: discardLogger()})
	require.NoError(t, err)
	mustPut(t, q, "a")
	assert.Equal(t, "a", mustGet(t, q))
	require.NoError(t, q.Close())

	// Unfinalized items are delivered again by the next instance.
	q, err = New(ctx, db, Options{Policy: store.LIFO, ManualCommit: true, Logger: discardLogger()})
	require.NoError(t, err)
	defer q.Close()
	assert.Equal(t, "a", mustGet(t, q))
}
