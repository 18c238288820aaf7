// Package queue implements a durable, goroutine-safe queue over a SQLite
// record table.
//
// One Queue type serves every variant. The store.Policy passed in Options
// selects the ordering direction (FIFO or LIFO) and whether payloads are
// unique; nothing else differs between variants.
//
// # Commit modes
//
// In auto-commit mode (the default) Get selects and deletes the head record
// in one transaction, so an item is never handed out twice.
//
// With ManualCommit set, Get leaves the record in place and advances an
// in-memory cursor. Done deletes every record dispatched since the last Done.
// On open the cursor is recomputed from the current head (head.id - 1), so
// records dispatched but not finalized before a crash are delivered again.
// Delivery is at-least-once: consumers in manual mode must be idempotent.
//
// # Blocking
//
// Get optionally waits for a Put. Waiters release the queue mutex while
// suspended and re-check after every wake, so spurious wakes are harmless.
// Waits are also bounded by Options.PollInterval so records inserted by other
// processes sharing the database file are noticed.
//
// # Errors
//
//   - ErrEmpty: nothing available under the requested blocking policy.
//   - ErrClosed: the queue was closed, including while a Get was waiting.
//   - *SerializationError: the codec rejected a value or payload; queue state
//     is unchanged.
//   - *store.StorageFault: engine failure. Close the queue and reopen it once
//     storage is repaired.
//
// A duplicate payload on a Unique queue is not an error: Put returns
// NotInserted.
package queue
