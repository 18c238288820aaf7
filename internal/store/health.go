package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Health summarizes the state of a queue database for diagnostic output.
type Health struct {
	Path           string         `json:"path"`
	Driver         string         `json:"driver"`
	Exists         bool           `json:"exists"`
	Readable       bool           `json:"readable"`
	IntegrityCheck bool           `json:"integrity_ok"`
	Tables         map[string]int `json:"tables"`
	Error          string         `json:"error,omitempty"`
}

// CheckHealth returns diagnostic information about the database: whether the
// file exists and answers queries, the row count of every table, and the
// result of PRAGMA integrity_check.
func (d *DB) CheckHealth(ctx context.Context) (Health, error) {
	health := Health{
		Path:   d.path,
		Driver: d.driver,
		Tables: map[string]int{},
	}

	if d.path == MemoryPath {
		health.Exists = true
	} else {
		info, err := os.Stat(d.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return health, nil
			}
			return health, fmt.Errorf("stat queue database: %w", err)
		}
		if info.IsDir() {
			return health, fmt.Errorf("queue database path %q is a directory", d.path)
		}
		health.Exists = true
	}

	connCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.db.PingContext(connCtx); err != nil {
		health.Error = err.Error()
		return health, &StorageFault{Op: "ping", Err: err}
	}
	health.Readable = true

	names, err := d.tableNames(connCtx)
	if err != nil {
		health.Error = err.Error()
		return health, err
	}
	for _, name := range names {
		var count int
		if err := d.db.QueryRowContext(connCtx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, name)).Scan(&count); err != nil {
			health.Error = err.Error()
			return health, &StorageFault{Op: "count " + name, Err: err}
		}
		health.Tables[name] = count
	}

	var integrity string
	if err := d.db.QueryRowContext(connCtx, "PRAGMA integrity_check").Scan(&integrity); err != nil {
		health.Error = err.Error()
		return health, &StorageFault{Op: "integrity check", Err: err}
	}
	health.IntegrityCheck = strings.EqualFold(integrity, "ok")

	return health, nil
}

// Vacuum rebuilds the database file to reclaim space left by deleted records.
func (d *DB) Vacuum(ctx context.Context) error {
	if _, err := d.exec(ctx, "vacuum", "VACUUM"); err != nil {
		return err
	}
	return nil
}

func (d *DB) tableNames(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, &StorageFault{Op: "list tables", Err: err}
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, &StorageFault{Op: "list tables", Err: err}
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageFault{Op: "list tables", Err: err}
	}
	return names, nil
}
