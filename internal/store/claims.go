package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
)

var claimTagPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,40}$`)

// Claims is a set of record ids handed to a consumer but not yet finalized.
//
// The set lives in a TEMP table, so it is private to the DB's single
// connection and vanishes when the DB closes. Queries exclude claimed ids
// with a correlated subquery; no statement binds more than one id.
type Claims struct {
	table *Table
	name  string

	selectContains string
	insert         string
	deleteOne      string
	deleteThrough  string
	deleteAll      string
	finalize       string
}

// Claims returns the claim set identified by tag for t, creating its TEMP
// table if needed. Owners sharing one DB must use distinct tags.
func (t *Table) Claims(ctx context.Context, tag string) (*Claims, error) {
	if !claimTagPattern.MatchString(tag) {
		return nil, fmt.Errorf("invalid claim tag %q", tag)
	}
	name := fmt.Sprintf("%s_claims_%s", t.name, tag)
	ref := fmt.Sprintf("temp.%q", name)

	c := &Claims{
		table:          t,
		name:           name,
		selectContains: fmt.Sprintf(`SELECT 1 FROM %s WHERE id = ?`, ref),
		insert:         fmt.Sprintf(`INSERT OR IGNORE INTO %s (id) VALUES (?)`, ref),
		deleteOne:      fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, ref),
		deleteThrough:  fmt.Sprintf(`DELETE FROM %s WHERE id <= ?`, ref),
		deleteAll:      fmt.Sprintf(`DELETE FROM %s`, ref),
		finalize:       fmt.Sprintf(`DELETE FROM %q WHERE id IN (SELECT id FROM %s)`, t.name, ref),
	}

	query := fmt.Sprintf(`CREATE TEMP TABLE IF NOT EXISTS %q (id INTEGER PRIMARY KEY)`, name)
	if _, err := t.db.exec(ctx, "create claims", query); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the TEMP table name.
func (c *Claims) Name() string {
	return c.name
}

// excludeClause returns a predicate on the record table that is false for
// claimed ids.
func (c *Claims) excludeClause() string {
	return fmt.Sprintf(`NOT EXISTS (SELECT 1 FROM temp.%q c WHERE c.id = %q.id)`, c.name, c.table.name)
}

// Add claims ids in one transaction. Already-claimed ids are ignored.
func (c *Claims) Add(ctx context.Context, ids ...int64) error {
	switch len(ids) {
	case 0:
		return nil
	case 1:
		_, err := c.table.db.exec(ctx, "claim", c.insert, ids[0])
		return err
	}
	return c.table.db.inTx(ctx, "claim", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, c.insert)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Contains reports whether id is claimed.
func (c *Claims) Contains(ctx context.Context, id int64) (bool, error) {
	c.table.db.traceStmt(c.selectContains, id)
	var one int
	err := retryOnBusy(ctx, c.table.db.logger, func() error {
		return c.table.db.db.QueryRowContext(ctx, c.selectContains, id).Scan(&one)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, translate("claim lookup", err)
	}
	return true, nil
}

// Remove releases one id without touching its record and reports whether
// it was claimed.
func (c *Claims) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := c.table.db.exec(ctx, "release claim", c.deleteOne, id)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

// ReleaseThrough releases every claimed id <= through without touching the
// records, and returns the number released.
func (c *Claims) ReleaseThrough(ctx context.Context, through int64) (int64, error) {
	res, err := c.table.db.exec(ctx, "release claims", c.deleteThrough, through)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

// Finalize deletes every claimed record and empties the set in one
// transaction. Returns the number of records deleted.
func (c *Claims) Finalize(ctx context.Context) (int64, error) {
	var removed int64
	err := c.table.db.inTx(ctx, "finalize claims", func(tx *sql.Tx) error {
		c.table.db.traceStmt(c.finalize)
		res, err := tx.ExecContext(ctx, c.finalize)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}
		c.table.db.traceStmt(c.deleteAll)
		_, err = tx.ExecContext(ctx, c.deleteAll)
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Drop removes the TEMP table.
func (c *Claims) Drop(ctx context.Context) error {
	query := fmt.Sprintf(`DROP TABLE IF EXISTS temp.%q`, c.name)
	_, err := c.table.db.exec(ctx, "drop claims", query)
	return err
}
