package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestDB creates a new file-backed database for testing.
func createTestDB(t *testing.T) *DB {
	t.Helper()
	return createTestDBWithDriver(t, DriverMattn)
}

func createTestDBWithDriver(t *testing.T, driver string) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	d, err := Open(path, Options{Driver: driver})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

// createTestTable opens the policy's default table on a fresh database.
func createTestTable(t *testing.T, policy Policy) *Table {
	t.Helper()
	d := createTestDB(t)
	tbl, err := d.Table(context.Background(), "", policy)
	if err != nil {
		t.Fatalf("Table() failed: %v", err)
	}
	return tbl
}

// mustInsert inserts a payload and fails the test on error.
func mustInsert(t *testing.T, tbl *Table, payload string) int64 {
	t.Helper()
	id, err := tbl.Insert(context.Background(), []byte(payload), 1700000000.5)
	if err != nil {
		t.Fatalf("Insert(%q) failed: %v", payload, err)
	}
	return id
}

// mustClaims opens a claim set on tbl and fails the test on error.
func mustClaims(t *testing.T, tbl *Table, tag string) *Claims {
	t.Helper()
	c, err := tbl.Claims(context.Background(), tag)
	if err != nil {
		t.Fatalf("Claims(%q) failed: %v", tag, err)
	}
	return c
}
