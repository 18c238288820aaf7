package queue

import (
	"time"

	"github.com/roach88/persistq/internal/store"
)

// Item is a decoded record together with its storage metadata.
type Item struct {
	ID        int64     `json:"id"`
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func newItem(rec store.Record, value any) *Item {
	return &Item{ID: rec.ID, Value: value, Timestamp: rec.Time()}
}
