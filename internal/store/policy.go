package store

import (
	"fmt"
	"strings"
)

// Policy selects a table's ordering direction and payload constraints.
// It is a tagged value rather than a type hierarchy: FIFO, LIFO and Unique
// share one implementation and differ only in the SQL they generate.
type Policy int

const (
	// FIFO serves records by ascending id.
	FIFO Policy = iota
	// LIFO serves records by descending id.
	LIFO
	// Unique serves records by ascending id and rejects duplicate payloads.
	Unique
)

// String returns the policy's configuration name.
func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	case Unique:
		return "unique"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy accepts "fifo", "lifo" (or "filo") and "unique", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fifo":
		return FIFO, nil
	case "lifo", "filo":
		return LIFO, nil
	case "unique":
		return Unique, nil
	default:
		return 0, fmt.Errorf("unknown queue variant %q: must be fifo, lifo or unique", s)
	}
}

// Descending reports whether the head is the newest record.
func (p Policy) Descending() bool {
	return p == LIFO
}

// UniquePayload reports whether payload bytes carry a UNIQUE constraint.
func (p Policy) UniquePayload() bool {
	return p == Unique
}

// DefaultTable is the table name used when a queue does not name one.
// Distinct defaults let every variant share one database file.
func (p Policy) DefaultTable() string {
	switch p {
	case LIFO:
		return "filo_queue"
	case Unique:
		return "unique_queue"
	default:
		return "queue"
	}
}

func (p Policy) orderClause() string {
	if p.Descending() {
		return "ORDER BY id DESC"
	}
	return "ORDER BY id ASC"
}

func (p Policy) valid() bool {
	return p == FIFO || p == LIFO || p == Unique
}
