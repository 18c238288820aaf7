package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/persistq/internal/codec"
	"github.com/roach88/persistq/internal/queue"
	"github.com/roach88/persistq/internal/store"
	"github.com/roach88/persistq/internal/testutil"
)

// Harness is the test execution engine.
// It owns one queue over a scratch database and reopens it on demand.
type Harness struct {
	path   string
	opts   queue.Options
	db     *store.DB
	queue  *queue.Queue
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh database file in a temporary directory,
// removed when Run returns. Record timestamps come from a deterministic clock.
//
// Execution flow:
// 1. Create a scratch database and open the configured queue
// 2. Execute each step, recording a trace event
// 3. Check the step's expect clause against the event
// 4. Return result with pass/fail, trace, and errors
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context bounding every step.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	dir, err := os.MkdirTemp("", "persistq-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	policy, err := store.ParsePolicy(scenario.Variant)
	if err != nil {
		return nil, err
	}
	var c codec.Codec
	if scenario.Serializer != "" {
		if c, err = codec.Lookup(scenario.Serializer); err != nil {
			return nil, err
		}
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	h := &Harness{
		path: filepath.Join(dir, "scenario.db"),
		opts: queue.Options{
			Policy:       policy,
			ManualCommit: !scenario.autoCommit(),
			Codec:        c,
			Now:          testutil.NewDeterministicClock().Now,
			Logger:       logger,
		},
		logger: logger,
	}
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, i+1, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}
		result.AddTrace(event)

		if step.Expect != nil {
			for _, msg := range checkExpect(event, step.Expect, result.Trace) {
				result.AddError(msg)
			}
		}
	}

	return result, nil
}

func (h *Harness) open(ctx context.Context) error {
	db, err := store.Open(h.path, store.Options{Logger: h.logger})
	if err != nil {
		return fmt.Errorf("failed to open scenario database: %w", err)
	}
	q, err := queue.New(ctx, db, h.opts)
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to open scenario queue: %w", err)
	}
	h.db = db
	h.queue = q
	return nil
}

func (h *Harness) close() error {
	if h.queue == nil {
		return nil
	}
	qErr := h.queue.Close()
	dbErr := h.db.Close()
	h.queue, h.db = nil, nil
	return errors.Join(qErr, dbErr)
}

// execute runs one step. Expected outcomes (empty, rejected, missing) are
// recorded in the event; any other error aborts the scenario.
func (h *Harness) execute(ctx context.Context, index int, step Step) (TraceEvent, error) {
	event := TraceEvent{Step: index, Op: step.Op, Outcome: OutcomeOK}
	q := h.queue

	switch step.Op {
	case OpPut:
		id, err := q.Put(ctx, step.Value)
		if err != nil {
			return event, err
		}
		event.Value = step.Value
		if id == queue.NotInserted {
			event.Outcome = OutcomeRejected
		} else {
			event.ID = id
		}

	case OpGet:
		item, err := q.GetItem(ctx, queue.GetOptions{
			Block:   step.Block,
			Timeout: step.Timeout.Duration,
			ID:      step.ID,
		})
		if err := recordItem(&event, item, err); err != nil {
			return event, err
		}

	case OpPeek:
		item, err := q.Peek(ctx)
		if err := recordItem(&event, item, err); err != nil {
			return event, err
		}

	case OpDone:
		removed, err := q.Done(ctx)
		if err != nil {
			return event, err
		}
		event.Removed = removed

	case OpRemove:
		ok, err := q.Remove(ctx, step.ID)
		if err != nil {
			return event, err
		}
		event.ID = step.ID
		if !ok {
			event.Outcome = OutcomeMissing
		}

	case OpReopen:
		if err := h.close(); err != nil {
			return event, err
		}
		if err := h.open(ctx); err != nil {
			return event, err
		}

	case OpSize:

	default:
		return event, fmt.Errorf("unknown op %q", step.Op)
	}

	event.Size = h.queue.Size()
	return event, nil
}

func recordItem(event *TraceEvent, item *queue.Item, err error) error {
	if queue.IsEmpty(err) {
		event.Outcome = OutcomeEmpty
		return nil
	}
	if err != nil {
		return err
	}
	event.ID = item.ID
	event.Value = item.Value
	return nil
}
