package queue

import (
	"log/slog"
	"time"

	"github.com/roach88/persistq/internal/codec"
	"github.com/roach88/persistq/internal/store"
)

// DefaultPollInterval bounds how long a blocked Get sleeps between storage
// checks when no local Put wakes it.
const DefaultPollInterval = time.Second

// Options configures a Queue.
type Options struct {
	// Policy selects FIFO, LIFO or Unique behavior.
	Policy store.Policy

	// Table overrides Policy.DefaultTable().
	Table string

	// ManualCommit keeps records in storage after Get until Done is called.
	ManualCommit bool

	// Codec encodes items. Nil means JSON, or Canonical for Unique queues.
	Codec codec.Codec

	// PollInterval bounds blocked waits. Zero means DefaultPollInterval.
	PollInterval time.Duration

	// Now stamps inserted records. Nil means time.Now.
	Now func() time.Time

	// Logger receives queue diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// GetOptions controls a single GetItem call.
type GetOptions struct {
	// Block waits for an item instead of failing with ErrEmpty.
	Block bool

	// Timeout bounds a blocking wait. Zero or negative waits until the
	// context is done.
	Timeout time.Duration

	// ID targets one record instead of the head. Zero selects the head.
	ID int64
}

func (o Options) withDefaults() Options {
	if o.Codec == nil {
		o.Codec = codec.JSON{}
	}
	// Equal values must encode to equal bytes for the UNIQUE constraint to
	// catch them.
	if o.Policy.UniquePayload() && o.Codec.Name() == codec.NameJSON {
		o.Codec = codec.Canonical{}
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}
