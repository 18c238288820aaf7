package queue

import (
	"errors"
	"fmt"

	"github.com/roach88/persistq/internal/store"
)

var (
	// ErrEmpty is returned by Get when no item is available within the
	// requested blocking policy. It is expected and retryable.
	ErrEmpty = errors.New("queue empty")

	// ErrClosed is returned by operations on a closed queue.
	ErrClosed = errors.New("queue closed")

	// ErrNotFound is returned by Update when no stored record has the id.
	ErrNotFound = errors.New("item not found")
)

// NotInserted is the id Put returns when a Unique queue rejects a duplicate.
const NotInserted int64 = 0

// SerializationError reports a codec failure. The operation is aborted and
// queue state is unchanged.
type SerializationError struct {
	// Op is "encode" or "decode".
	Op string

	// Codec names the codec that failed.
	Codec string

	// ID is the record whose payload failed to decode, zero when encoding.
	ID int64

	Err error
}

func (e *SerializationError) Error() string {
	if e.ID > 0 {
		return fmt.Sprintf("%s %s (record %d): %v", e.Codec, e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Codec, e.Op, e.Err)
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsEmpty returns true if err is or wraps ErrEmpty.
func IsEmpty(err error) bool {
	return errors.Is(err, ErrEmpty)
}

// IsClosed returns true if err is or wraps ErrClosed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsSerialization returns true if err is or wraps a *SerializationError.
func IsSerialization(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}

// IsDuplicate returns true if err reports a payload already held by a
// Unique queue. Only Update surfaces it; Put absorbs duplicates.
func IsDuplicate(err error) bool {
	return errors.Is(err, store.ErrConstraint)
}

// IsStorageFault returns true if err is or wraps a *store.StorageFault.
func IsStorageFault(err error) bool {
	return store.IsStorageFault(err)
}
