package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"testing"
)

// recorderConn is a stub driver connection that records every statement
// it runs and answers single-value rows, so the repository's query
// shaping can be exercised without a live server.
type recorderConn struct {
	queries []string
}

func (c *recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *recorderConn) Close() error              { return nil }
func (c *recorderConn) Begin() (driver.Tx, error) { return noopTx{}, nil }

func (c *recorderConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c.queries = append(c.queries, query)
	return &oneValueRows{val: int64(1)}, nil
}

func (c *recorderConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c.queries = append(c.queries, query)
	return driver.RowsAffected(1), nil
}

type noopTx struct{}

func (noopTx) Commit() error   { return nil }
func (noopTx) Rollback() error { return nil }

type oneValueRows struct {
	val  driver.Value
	done bool
}

func (r *oneValueRows) Columns() []string { return []string{"v"} }
func (r *oneValueRows) Close() error      { return nil }
func (r *oneValueRows) Next(dest []driver.Value) error {
	if r.done {
		return io.EOF
	}
	r.done = true
	dest[0] = r.val
	return nil
}

type recorderConnector struct {
	conn *recorderConn
}

func (c *recorderConnector) Connect(context.Context) (driver.Conn, error) { return c.conn, nil }
func (c *recorderConnector) Driver() driver.Driver                        { return recorderDriver{} }

type recorderDriver struct{}

func (recorderDriver) Open(string) (driver.Conn, error) { return nil, errors.New("use OpenDB") }

func newRecorderDB(t *testing.T) (*sql.DB, *recorderConn) {
	t.Helper()
	conn := &recorderConn{}
	db := sql.OpenDB(&recorderConnector{conn: conn})
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db, conn
}

// Two concurrent finalizes for the same client must not both read a
// stale sold total and commit past the purchase cap.  The count path
// serializes on the client's users row and reads with locks so it sees
// the latest committed sales, not the transaction's snapshot.
func TestSoldCountForClientLocksClientRow(t *testing.T) {
	db, conn := newRecorderDB(t)
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	ut := &unitTx{tx: tx}
	n, err := ut.SoldCountForClient(context.Background(), 1, 7)
	if err != nil {
		t.Fatalf("SoldCountForClient: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if len(conn.queries) != 2 {
		t.Fatalf("statements issued = %d, want 2: %q", len(conn.queries), conn.queries)
	}
	if !strings.Contains(conn.queries[0], "FROM users") || !strings.Contains(conn.queries[0], "FOR UPDATE") {
		t.Errorf("first statement must lock the client row, got %q", conn.queries[0])
	}
	if !strings.Contains(conn.queries[1], "COUNT(*)") || !strings.Contains(conn.queries[1], "FOR UPDATE") {
		t.Errorf("count must be a locking read, got %q", conn.queries[1])
	}
}

// The delete-time sold count must lock the event's unit rows so a
// delete transaction blocks behind an in-flight finalize instead of
// reading zero sold from a snapshot taken before it committed.
func TestSoldCountByEventLocksUnitRows(t *testing.T) {
	db, conn := newRecorderDB(t)
	tx, err := db.BeginTx(context.Background(), nil)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	r := NewUnitRepo(db)
	n, err := r.SoldCountByEventTx(context.Background(), tx, 1)
	if err != nil {
		t.Fatalf("SoldCountByEventTx: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
	if len(conn.queries) != 1 {
		t.Fatalf("statements issued = %d, want 1: %q", len(conn.queries), conn.queries)
	}
	if !strings.Contains(conn.queries[0], "FROM units") || !strings.Contains(conn.queries[0], "FOR UPDATE") {
		t.Errorf("count must lock the event's unit rows, got %q", conn.queries[0])
	}
}
