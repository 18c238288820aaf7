package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/persistq/internal/codec"
	"github.com/roach88/persistq/internal/config"
	"github.com/roach88/persistq/internal/store"
)

// Queue is a durable queue over one record table.
//
// All methods are safe for concurrent use. Counters (total, cursor) and the
// claim set are private to this instance; other processes sharing the file
// are seen through storage only.
type Queue struct {
	db     *store.DB
	ownsDB bool
	table  *store.Table
	codec  codec.Codec
	policy store.Policy
	manual bool
	poll   time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu sync.Mutex

	// total counts records not yet handed to a consumer.
	total int

	// cursor is the id of the last record dispatched from the head in manual
	// mode. Records with id <= cursor are finalized by Done.
	cursor int64

	// claims holds ids handed out in manual mode outside the cursor range:
	// every LIFO dispatch, and targeted gets. Nil in auto-commit mode.
	claims  *store.Claims
	claimed int64

	// pending counts manual-mode dispatches since the last Done.
	pending int

	// notify is closed and replaced on every Put to wake all waiters.
	notify chan struct{}

	closed  bool
	closing chan struct{}
}

// New creates a queue over a table in db, creating the table if needed.
// The caller keeps ownership of db.
func New(ctx context.Context, db *store.DB, opts Options) (*Queue, error) {
	opts = opts.withDefaults()

	table, err := db.Table(ctx, opts.Table, opts.Policy)
	if err != nil {
		return nil, fmt.Errorf("open queue table: %w", err)
	}

	q := &Queue{
		db:      db,
		table:   table,
		codec:   opts.Codec,
		policy:  opts.Policy,
		manual:  opts.ManualCommit,
		poll:    opts.PollInterval,
		now:     opts.Now,
		notify:  make(chan struct{}),
		closing: make(chan struct{}),
	}
	instance := newInstanceID()
	q.logger = opts.Logger.With(
		"table", table.Name(),
		"policy", opts.Policy.String(),
		"instance", instance,
	)

	if q.manual {
		q.claims, err = table.Claims(ctx, strings.ReplaceAll(instance, "-", ""))
		if err != nil {
			return nil, fmt.Errorf("open queue claims: %w", err)
		}
	}

	if err := q.init(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

// Open opens the database named by cfg and creates a queue that owns it.
// Close releases the database.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}

	policy, err := store.ParsePolicy(cfg.Variant)
	if err != nil {
		return nil, err
	}
	c, err := codec.Lookup(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Path, store.Options{
		Driver:      cfg.Driver,
		BusyTimeout: cfg.BusyTimeout.Duration,
		Trace:       cfg.Trace,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	q, err := New(ctx, db, Options{
		Policy:       policy,
		Table:        cfg.Table,
		ManualCommit: !cfg.AutoCommit,
		Codec:        c,
		PollInterval: cfg.PollInterval.Duration,
		Logger:       logger,
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	q.ownsDB = true
	return q, nil
}

// init reconciles the in-memory counters with storage.
func (q *Queue) init(ctx context.Context) error {
	count, err := q.table.Count(ctx)
	if err != nil {
		return err
	}
	q.total = count

	if q.manual {
		head, err := q.table.SelectHead(ctx)
		if err != nil {
			return err
		}
		q.cursor = 0
		if head != nil {
			q.cursor = head.ID - 1
		}
	}

	q.logger.Debug("queue opened", "size", q.total, "cursor", q.cursor, "manual_commit", q.manual)
	return nil
}

// newInstanceID returns a time-ordered id used to correlate log lines from
// one queue instance. Falls back to a random id if the clock source fails.
func newInstanceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Put encodes item and appends it to the queue, returning its id.
// Put never blocks: the queue has no capacity limit.
//
// On a Unique queue a payload equal to a stored one is rejected: Put returns
// NotInserted and a nil error, and neither the size nor waiters change.
func (q *Queue) Put(ctx context.Context, item any) (int64, error) {
	payload, err := q.codec.Marshal(item)
	if err != nil {
		return 0, &SerializationError{Op: "encode", Codec: q.codec.Name(), Err: err}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}

	id, err := q.table.Insert(ctx, payload, store.TimestampOf(q.now()))
	if err != nil {
		if q.policy.UniquePayload() && errors.Is(err, store.ErrConstraint) {
			q.logger.Debug("duplicate payload rejected")
			return NotInserted, nil
		}
		return 0, err
	}

	q.total++
	q.signal()
	return id, nil
}

// PutNowait is Put. It exists for symmetry with GetNowait.
func (q *Queue) PutNowait(ctx context.Context, item any) (int64, error) {
	return q.Put(ctx, item)
}

// Get returns the next item's value. See GetItem for blocking semantics.
func (q *Queue) Get(ctx context.Context, block bool, timeout time.Duration) (any, error) {
	item, err := q.GetItem(ctx, GetOptions{Block: block, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// GetNowait returns the next item's value or ErrEmpty.
func (q *Queue) GetNowait(ctx context.Context) (any, error) {
	return q.Get(ctx, false, 0)
}

// GetItem dispatches the head item (or the item with opts.ID) and returns it
// with its metadata.
//
// When nothing is available GetItem returns ErrEmpty immediately unless
// opts.Block is set. A blocking call waits for a Put, returning ErrEmpty once
// opts.Timeout has elapsed, or the context error if ctx ends first. A zero
// timeout waits on ctx alone.
func (q *Queue) GetItem(ctx context.Context, opts GetOptions) (*Item, error) {
	var deadline time.Time
	if opts.Block && opts.Timeout > 0 {
		deadline = time.Now().Add(opts.Timeout)
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		item, err := q.fetch(ctx, opts.ID)
		if err != nil || item != nil {
			q.mu.Unlock()
			return item, err
		}
		wake := q.notify
		q.mu.Unlock()

		if !opts.Block {
			return nil, ErrEmpty
		}

		wait := q.poll
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrEmpty
			}
			wait = min(wait, remaining)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-q.closing:
			timer.Stop()
			return nil, ErrClosed
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// fetch dispatches one item or returns (nil, nil) when none is available.
// Caller must hold q.mu.
func (q *Queue) fetch(ctx context.Context, id int64) (*Item, error) {
	if q.manual {
		return q.dispatch(ctx, id)
	}
	return q.pop(ctx, id)
}

// pop selects and deletes in one transaction. A payload that fails to decode
// rolls the transaction back, leaving the record in place.
func (q *Queue) pop(ctx context.Context, id int64) (*Item, error) {
	var value any
	rec, err := q.table.Pop(ctx, id, func(r store.Record) error {
		v, err := q.decode(r)
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil || rec == nil {
		return nil, err
	}
	q.consumed()
	return newItem(*rec, value), nil
}

// dispatch hands out a record without deleting it.
func (q *Queue) dispatch(ctx context.Context, id int64) (*Item, error) {
	var (
		rec *store.Record
		err error
	)
	switch {
	case id > 0:
		ok, err := q.live(ctx, id)
		if err != nil || !ok {
			return nil, err
		}
		rec, err = q.table.SelectByID(ctx, id)
		if err != nil {
			return nil, err
		}
	case q.policy.Descending():
		rec, err = q.table.SelectNext(ctx, 0, q.claims)
	default:
		rec, err = q.table.SelectNext(ctx, q.cursor, q.claims)
	}
	if err != nil || rec == nil {
		return nil, err
	}

	value, err := q.decode(*rec)
	if err != nil {
		return nil, err
	}

	if id == 0 && !q.policy.Descending() {
		if q.claimed > 0 {
			n, err := q.claims.ReleaseThrough(ctx, rec.ID)
			if err != nil {
				return nil, err
			}
			q.claimed -= n
		}
		q.cursor = rec.ID
	} else {
		if err := q.claims.Add(ctx, rec.ID); err != nil {
			return nil, err
		}
		q.claimed++
	}
	q.pending++
	q.consumed()
	return newItem(*rec, value), nil
}

// live reports whether id has not been dispatched in manual mode.
// Caller must hold q.mu.
func (q *Queue) live(ctx context.Context, id int64) (bool, error) {
	if !q.manual {
		return true, nil
	}
	if !q.policy.Descending() && id <= q.cursor {
		return false, nil
	}
	if q.claimed == 0 {
		return true, nil
	}
	claimed, err := q.claims.Contains(ctx, id)
	if err != nil {
		return false, err
	}
	return !claimed, nil
}

// consumed decrements total. Records inserted by other processes are not
// counted locally, so total never goes below zero.
func (q *Queue) consumed() {
	if q.total > 0 {
		q.total--
	}
}

func (q *Queue) decode(rec store.Record) (any, error) {
	v, err := q.codec.Unmarshal(rec.Payload)
	if err != nil {
		return nil, &SerializationError{Op: "decode", Codec: q.codec.Name(), ID: rec.ID, Err: err}
	}
	return v, nil
}

// signal wakes every waiter. Caller must hold q.mu.
func (q *Queue) signal() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Done finalizes every item dispatched since the last Done by deleting its
// record, and returns the number of records removed. It is a no-op in
// auto-commit mode.
func (q *Queue) Done(ctx context.Context) (int64, error) {
	if !q.manual {
		return 0, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}

	var removed int64
	if !q.policy.Descending() && q.cursor > 0 {
		n, err := q.table.DeleteWhere(ctx, store.ColumnID, store.OpLte, q.cursor)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	if q.claimed > 0 {
		n, err := q.claims.Finalize(ctx)
		if err != nil {
			return removed, err
		}
		removed += n
		q.claimed = 0
	}
	q.pending = 0

	q.logger.Debug("dispatched items finalized", "removed", removed, "cursor", q.cursor)
	return removed, nil
}

// Peek returns the item the next Get would dispatch, without dispatching it.
// Returns ErrEmpty when there is none.
func (q *Queue) Peek(ctx context.Context) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	var (
		rec *store.Record
		err error
	)
	switch {
	case !q.manual:
		rec, err = q.table.SelectHead(ctx)
	case q.policy.Descending():
		rec, err = q.table.SelectNext(ctx, 0, q.claims)
	default:
		rec, err = q.table.SelectNext(ctx, q.cursor, q.claims)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrEmpty
	}

	value, err := q.decode(*rec)
	if err != nil {
		return nil, err
	}
	return newItem(*rec, value), nil
}

// Update replaces the value of a stored item.
// Returns ErrNotFound if no record has the id. On a Unique queue a value
// equal to another stored item fails with an error satisfying IsDuplicate.
func (q *Queue) Update(ctx context.Context, id int64, item any) error {
	payload, err := q.codec.Marshal(item)
	if err != nil {
		return &SerializationError{Op: "encode", Codec: q.codec.Name(), Err: err}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	ok, err := q.table.Update(ctx, id, payload)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("update %d: %w", id, ErrNotFound)
	}
	return nil
}

// Remove deletes one stored item by id and reports whether it existed.
// Removing an item not yet dispatched reduces Size.
func (q *Queue) Remove(ctx context.Context, id int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}

	live, err := q.live(ctx, id)
	if err != nil {
		return false, err
	}
	ok, err := q.table.Delete(ctx, id)
	if err != nil || !ok {
		return false, err
	}
	switch {
	case live:
		q.consumed()
	case q.claimed > 0:
		released, err := q.claims.Remove(ctx, id)
		if err != nil {
			return true, err
		}
		if released {
			q.claimed--
		}
	}
	return true, nil
}

// Items returns every stored item in policy order, including items dispatched
// but not yet finalized.
func (q *Queue) Items(ctx context.Context) ([]Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrClosed
	}

	records, err := q.table.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(records))
	for _, rec := range records {
		value, err := q.decode(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, *newItem(rec, value))
	}
	return items, nil
}

// Size returns the number of items not yet dispatched, without querying
// storage.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.total
}

// Empty reports whether Size is zero.
func (q *Queue) Empty() bool {
	return q.Size() == 0
}

// Full always returns false: the queue has no capacity limit.
func (q *Queue) Full() bool {
	return false
}

// Cursor returns the id of the last record dispatched from the head in
// manual-commit mode.
func (q *Queue) Cursor() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cursor
}

// AutoCommit reports whether Get deletes records as it returns them.
func (q *Queue) AutoCommit() bool {
	return !q.manual
}

// Policy returns the queue's variant.
func (q *Queue) Policy() store.Policy {
	return q.policy
}

// Table returns the name of the backing table.
func (q *Queue) Table() string {
	return q.table.Name()
}

// Codec returns the payload codec in use.
func (q *Queue) Codec() codec.Codec {
	return q.codec
}

// Shrink reclaims disk space left by deleted records.
func (q *Queue) Shrink(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	return q.db.Vacuum(ctx)
}

// Health reports diagnostics for the database backing the queue.
func (q *Queue) Health(ctx context.Context) (store.Health, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return store.Health{}, ErrClosed
	}
	return q.db.CheckHealth(ctx)
}

// Close wakes blocked getters with ErrClosed and, for queues created by Open,
// closes the database. Records dispatched in manual mode but not finalized
// stay in storage and are delivered again after reopening.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.closing)

	if q.pending > 0 {
		q.logger.Info("closing with unfinalized items", "pending", q.pending, "cursor", q.cursor)
	}

	if q.claims != nil && !q.ownsDB {
		if err := q.claims.Drop(context.Background()); err != nil {
			q.logger.Warn("failed to drop claims", "claims", q.claims.Name(), "error", err)
		}
	}

	if q.ownsDB {
		if err := q.db.Close(); err != nil {
			return fmt.Errorf("close queue database: %w", err)
		}
	}
	return nil
}
