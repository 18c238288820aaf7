package store

import (
	"math"
	"time"
)

// Record is one stored queue item plus its metadata.
type Record struct {
	// ID is assigned by SQLite on insert and never reused.
	ID int64

	// Payload is the codec-encoded item.
	Payload []byte

	// Timestamp is the insertion time in seconds since the epoch.
	Timestamp float64
}

// Time converts Timestamp to a time.Time.
func (r Record) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// TimestampOf converts t to the REAL seconds value stored in the timestamp column.
func TimestampOf(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
