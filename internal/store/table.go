package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Column names a record column usable in SelectWhere and DeleteWhere.
type Column string

const (
	ColumnID        Column = "id"
	ColumnTimestamp Column = "timestamp"
)

// Op is a comparison operator usable in SelectWhere and DeleteWhere.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// Table is one record table and its policy.
// Methods are safe for concurrent use; multi-statement operations run in a
// single transaction.
type Table struct {
	db     *DB
	name   string
	policy Policy

	selectCols string
}

// Table returns a handle on the named record table, creating it if needed.
// An empty name selects policy.DefaultTable().
func (d *DB) Table(ctx context.Context, name string, policy Policy) (*Table, error) {
	if !policy.valid() {
		return nil, fmt.Errorf("invalid policy %d", int(policy))
	}
	if name == "" {
		name = policy.DefaultTable()
	}
	if !tableNamePattern.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}

	t := &Table{
		db:         d,
		name:       name,
		policy:     policy,
		selectCols: "id, payload, timestamp",
	}
	if err := t.CreateSchema(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Policy returns the table's ordering and uniqueness policy.
func (t *Table) Policy() Policy {
	return t.policy
}

// CreateSchema ensures the table exists with the policy's columns and constraints.
// Safe to call on every startup.
func (t *Table) CreateSchema(ctx context.Context) error {
	var b strings.Builder
	fmt.Fprintf(&b, `CREATE TABLE IF NOT EXISTS %q (`, t.name)
	b.WriteString(`id INTEGER PRIMARY KEY AUTOINCREMENT, payload BLOB, timestamp REAL`)
	if t.policy.UniquePayload() {
		b.WriteString(`, UNIQUE (payload)`)
	}
	b.WriteString(`)`)

	if _, err := t.db.exec(ctx, "create schema", b.String()); err != nil {
		return err
	}
	return nil
}

// Insert stores one record and returns its assigned id.
// Returns an error wrapping ErrConstraint when a Unique table already holds
// the same payload.
func (t *Table) Insert(ctx context.Context, payload []byte, timestamp float64) (int64, error) {
	query := fmt.Sprintf(`INSERT INTO %q (payload, timestamp) VALUES (?, ?)`, t.name)
	res, err := t.db.exec(ctx, "insert", query, payload, timestamp)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, &StorageFault{Op: "last insert id", Err: err}
	}
	return id, nil
}

// SelectHead returns the record at the head of the table by policy order,
// or nil when the table is empty.
func (t *Table) SelectHead(ctx context.Context) (*Record, error) {
	return t.selectOne(ctx, "select head", "", nil)
}

// SelectByID returns the record with the given id, or nil.
func (t *Table) SelectByID(ctx context.Context, id int64) (*Record, error) {
	return t.selectOne(ctx, "select by id", "id = ?", []any{id})
}

// SelectWhere returns the first record by policy order satisfying
// "column op value", or nil.
func (t *Table) SelectWhere(ctx context.Context, column Column, op Op, value any) (*Record, error) {
	where, err := predicate(column, op)
	if err != nil {
		return nil, err
	}
	return t.selectOne(ctx, "select where", where, []any{value})
}

// SelectNext returns the first record by policy order whose id is greater
// than after and not claimed in exclude, or nil. after <= 0 places no lower
// bound; a nil exclude excludes nothing.
func (t *Table) SelectNext(ctx context.Context, after int64, exclude *Claims) (*Record, error) {
	var (
		clauses []string
		args    []any
	)
	if after > 0 {
		clauses = append(clauses, "id > ?")
		args = append(args, after)
	}
	if exclude != nil {
		clauses = append(clauses, exclude.excludeClause())
	}
	return t.selectOne(ctx, "select next", strings.Join(clauses, " AND "), args)
}

// Pop selects the head record (or the record with the given id when id > 0)
// and deletes it in the same transaction. Returns nil when nothing matched.
//
// If check is non-nil it runs before the delete; a non-nil result rolls the
// transaction back and is returned to the caller unchanged.
func (t *Table) Pop(ctx context.Context, id int64, check func(Record) error) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %q `, t.selectCols, t.name)
	var args []any
	if id > 0 {
		query += `WHERE id = ? `
		args = append(args, id)
	}
	query += t.policy.orderClause() + ` LIMIT 1`
	deleteQuery := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, t.name)

	var rec *Record
	err := t.db.inTx(ctx, "pop", func(tx *sql.Tx) error {
		rec = nil
		t.db.traceStmt(query, args...)
		r, err := scanRecord(tx.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(*r); err != nil {
				return &abortError{err: err}
			}
		}
		t.db.traceStmt(deleteQuery, r.ID)
		if _, err := tx.ExecContext(ctx, deleteQuery, r.ID); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes the record with the given id.
// Returns true if a row was removed.
func (t *Table) Delete(ctx context.Context, id int64) (bool, error) {
	n, err := t.DeleteWhere(ctx, ColumnID, OpEq, id)
	return n > 0, err
}

// DeleteWhere removes every record satisfying "column op value" and returns
// the number of rows removed.
func (t *Table) DeleteWhere(ctx context.Context, column Column, op Op, value any) (int64, error) {
	where, err := predicate(column, op)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %q WHERE %s`, t.name, where)
	res, err := t.db.exec(ctx, "delete", query, value)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// Update replaces the payload of an existing record.
// Returns false if no record has the id.
func (t *Table) Update(ctx context.Context, id int64, payload []byte) (bool, error) {
	query := fmt.Sprintf(`UPDATE %q SET payload = ? WHERE id = ?`, t.name)
	res, err := t.db.exec(ctx, "update", query, payload, id)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

// Count returns the number of stored records.
func (t *Table) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, t.name)
	t.db.traceStmt(query)
	var count int
	err := retryOnBusy(ctx, t.db.logger, func() error {
		return t.db.db.QueryRowContext(ctx, query).Scan(&count)
	})
	if err != nil {
		return 0, translate("count", err)
	}
	return count, nil
}

// List returns up to limit records in policy order. limit <= 0 returns all.
// Returns an empty slice (not nil) for an empty table.
func (t *Table) List(ctx context.Context, limit int) ([]Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %q %s`, t.selectCols, t.name, t.policy.orderClause())
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	t.db.traceStmt(query, args...)

	var records []Record
	err := retryOnBusy(ctx, t.db.logger, func() error {
		records = records[:0]
		rows, err := t.db.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				return err
			}
			records = append(records, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, translate("list", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

func (t *Table) selectOne(ctx context.Context, op, where string, args []any) (*Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM %q`, t.selectCols, t.name)
	if where != "" {
		query += ` WHERE ` + where
	}
	query += ` ` + t.policy.orderClause() + ` LIMIT 1`
	t.db.traceStmt(query, args...)

	var rec *Record
	err := retryOnBusy(ctx, t.db.logger, func() error {
		r, err := scanRecord(t.db.db.QueryRowContext(ctx, query, args...))
		if errors.Is(err, sql.ErrNoRows) {
			rec = nil
			return nil
		}
		rec = r
		return err
	})
	if err != nil {
		return nil, translate(op, err)
	}
	return rec, nil
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var rec Record
	var ts sql.NullFloat64
	if err := scanner.Scan(&rec.ID, &rec.Payload, &ts); err != nil {
		return nil, err
	}
	rec.Timestamp = ts.Float64
	return &rec, nil
}

func predicate(column Column, op Op) (string, error) {
	switch column {
	case ColumnID, ColumnTimestamp:
	default:
		return "", fmt.Errorf("invalid column %q", column)
	}
	switch op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
	default:
		return "", fmt.Errorf("invalid operator %q", op)
	}
	return fmt.Sprintf("%s %s ?", column, op), nil
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StorageFault{Op: "rows affected", Err: err}
	}
	return n, nil
}
