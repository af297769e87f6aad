package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// execCall records one statement seen by the stubs.
type execCall struct {
	sql  string
	args []any
}

// txStub implements pgx.Tx; the embedded nil interface panics on anything
// the repositories are not expected to call.
type txStub struct {
	pgx.Tx
	pool *poolStub
}

func (t *txStub) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.pool.Exec(ctx, sql, args...)
}

func (t *txStub) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.pool.QueryRow(ctx, sql, args...)
}

func (t *txStub) Commit(context.Context) error {
	t.pool.committed = true
	return t.pool.commitErr
}

func (t *txStub) Rollback(context.Context) error {
	t.pool.rolledBack = true
	return nil
}

// poolStub implements postgres.PgxPool. Responses are keyed by a
// substring of the statement.
type poolStub struct {
	calls      []execCall
	execTags   map[string]pgconn.CommandTag
	execErrs   map[string]error
	rows       map[string]func(dest ...any) error
	queryRows  *rowsStub
	queryErr   error
	beginErr   error
	commitErr  error
	committed  bool
	rolledBack bool
}

func newPoolStub() *poolStub {
	return &poolStub{
		execTags: map[string]pgconn.CommandTag{},
		execErrs: map[string]error{},
		rows:     map[string]func(dest ...any) error{},
	}
}

func match[V any](m map[string]V, sql string) (V, bool) {
	for k, v := range m {
		if strings.Contains(sql, k) {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.calls = append(p.calls, execCall{sql: sql, args: args})
	if err, ok := match(p.execErrs, sql); ok {
		return pgconn.CommandTag{}, err
	}
	if tag, ok := match(p.execTags, sql); ok {
		return tag, nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.calls = append(p.calls, execCall{sql: sql, args: args})
	if scan, ok := match(p.rows, sql); ok {
		return rowStub{scan: scan}
	}
	return rowStub{scan: func(_ ...any) error { return errors.New("no row configured") }}
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.calls = append(p.calls, execCall{sql: sql, args: args})
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.queryRows, nil
}

func (p *poolStub) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return &txStub{pool: p}, nil
}

// find returns the first recorded call whose SQL contains sub.
func (p *poolStub) find(sub string) (execCall, bool) {
	for _, c := range p.calls {
		if strings.Contains(c.sql, sub) {
			return c, true
		}
	}
	return execCall{}, false
}

// rowsStub implements pgx.Rows over in-memory records.
type rowsStub struct {
	pgx.Rows
	data   [][]any
	i      int
	err    error
	closed bool
}

func (r *rowsStub) Next() bool {
	if r.i >= len(r.data) {
		return false
	}
	r.i++
	return true
}

func (r *rowsStub) Scan(dest ...any) error {
	row := r.data[r.i-1]
	for i := range dest {
		if err := assign(dest[i], row[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *rowsStub) Err() error { return r.err }
func (r *rowsStub) Close()     { r.closed = true }

func assign(dst, v any) error {
	switch d := dst.(type) {
	case *string:
		*d = v.(string)
	case *int:
		*d = v.(int)
	case *int64:
		*d = v.(int64)
	case *bool:
		*d = v.(bool)
	case *time.Time:
		*d = v.(time.Time)
	default:
		return fmt.Errorf("unsupported scan target %T", dst)
	}
	return nil
}
