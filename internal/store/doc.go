// Package store provides SQLite-backed durable storage for queue records.
//
// A DB wraps one database file, which may hold several record tables (one
// per queue). A Table owns its schema and the parameterized CRUD the queue
// core issues against it:
//   - Insert, assigning a strictly increasing id (AUTOINCREMENT, never reused)
//   - SelectHead / SelectWhere, ordered by the table's Policy
//   - Pop, select-and-delete inside one transaction
//   - Delete / DeleteWhere, Count, Update, List
//   - Claims, the per-connection set of dispatched ids awaiting finalization
//
// # Record Schema
//
//	id        INTEGER PRIMARY KEY AUTOINCREMENT
//	payload   BLOB
//	timestamp REAL    -- seconds since epoch, introspection only
//	UNIQUE (payload)  -- Unique policy only
//
// # Errors
//
// Driver errors never cross this package boundary untranslated. Uniqueness
// conflicts become ErrConstraint; everything else becomes a *StorageFault.
// SQLITE_BUSY and SQLITE_LOCKED are retried with backoff before surfacing.
//
// # Database Configuration
//
//   - WAL mode for file databases: concurrent readers during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout: wait for locks held by other processes
//   - _txlock=immediate: transactions take the write lock up front
//
// Two drivers are supported: "sqlite3" (github.com/mattn/go-sqlite3, cgo)
// and "sqlite" (modernc.org/sqlite, pure Go). Both read the same file format.
package store
