package store

import (
	"testing"
	"time"
)

func TestRecordTime(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 250_000_000, time.UTC)
	rec := Record{Timestamp: TimestampOf(now)}

	got := rec.Time()
	if diff := got.Sub(now); diff > time.Microsecond || diff < -time.Microsecond {
		t.Errorf("Time() = %v, want %v", got, now)
	}
}
