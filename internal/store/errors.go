package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	modsqlite "modernc.org/sqlite"
)

// ErrConstraint reports an insert or update rejected by a table constraint,
// such as the UNIQUE (payload) constraint of a Unique table. It is an expected
// outcome, not a fault.
var ErrConstraint = errors.New("constraint violation")

// StorageFault is an engine I/O, corruption or protocol error. It is not
// recoverable by the caller; the owning queue should be closed and reopened
// once storage has been repaired.
type StorageFault struct {
	// Op names the store operation that failed.
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error {
	return e.Err
}

// IsStorageFault returns true if err is or wraps a *StorageFault.
func IsStorageFault(err error) bool {
	var fault *StorageFault
	return errors.As(err, &fault)
}

// SQLite primary result codes. Extended codes carry these in the low byte.
const (
	sqliteBusyCode       = 5
	sqliteLockedCode     = 6
	sqliteConstraintCode = 19
)

const (
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// translate maps a driver error onto the package error taxonomy.
// Context cancellation passes through unchanged.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConstraint) || IsStorageFault(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isConstraint(err) {
		return fmt.Errorf("%s: %w", op, ErrConstraint)
	}
	return &StorageFault{Op: op, Err: err}
}

// resultCode extracts the primary SQLite result code from either driver.
func resultCode(err error) (int, bool) {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		return int(mattnErr.Code), true
	}
	var modErr *modsqlite.Error
	if errors.As(err, &modErr) {
		return modErr.Code() & 0xff, true
	}
	return 0, false
}

func isConstraint(err error) bool {
	if code, ok := resultCode(err); ok {
		return code == sqliteConstraintCode
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := resultCode(err); ok {
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, logger *slog.Logger, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		logger.Debug("database busy, retrying", "attempt", attempt+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
