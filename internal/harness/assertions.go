package harness

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/roach88/persistq/internal/codec"
)

// ExpectationError describes a step whose outcome did not match its expect
// clause.
type ExpectationError struct {
	Step     int          // 1-based step index
	Field    string       // Mismatched field
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Trace up to and including the step
}

// Error implements the error interface.
func (e *ExpectationError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Expectation failed: step %d %s\n", e.Step, e.Field)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nTrace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s", event.Step, event.Op, event.Outcome)
		if event.ID != 0 {
			fmt.Fprintf(&buf, " id=%d", event.ID)
		}
		if event.Value != nil {
			fmt.Fprintf(&buf, " value=%v", event.Value)
		}
		fmt.Fprintf(&buf, " size=%d\n", event.Size)
	}

	return buf.String()
}

// checkExpect compares an event against its expect clause and returns one
// message per mismatched field.
func checkExpect(event TraceEvent, expect *Expect, trace []TraceEvent) []string {
	var errs []string
	fail := func(field, expected, actual string) {
		err := &ExpectationError{
			Step:     event.Step,
			Field:    field,
			Expected: expected,
			Actual:   actual,
			Trace:    trace,
		}
		errs = append(errs, err.Error())
	}

	wantOutcome := OutcomeOK
	switch {
	case expect.Empty:
		wantOutcome = OutcomeEmpty
	case expect.Rejected:
		wantOutcome = OutcomeRejected
	case expect.Missing:
		wantOutcome = OutcomeMissing
	}
	if event.Outcome != wantOutcome {
		fail("outcome", wantOutcome, event.Outcome)
		return errs
	}

	if expect.Value != nil && !sameValue(expect.Value, event.Value) {
		fail("value", describe(expect.Value), describe(event.Value))
	}
	if expect.ID != nil && *expect.ID != event.ID {
		fail("id", fmt.Sprint(*expect.ID), fmt.Sprint(event.ID))
	}
	if expect.Size != nil && *expect.Size != event.Size {
		fail("size", fmt.Sprint(*expect.Size), fmt.Sprint(event.Size))
	}
	if expect.Removed != nil && *expect.Removed != event.Removed {
		fail("removed", fmt.Sprint(*expect.Removed), fmt.Sprint(event.Removed))
	}

	return errs
}

// sameValue compares values by canonical encoding. YAML decodes 1 as int
// while queued values come back as float64; both encode to the same bytes.
func sameValue(expected, actual any) bool {
	a, errA := codec.Canonical{}.Marshal(expected)
	b, errB := codec.Canonical{}.Marshal(actual)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func describe(v any) string {
	data, err := codec.Canonical{}.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
