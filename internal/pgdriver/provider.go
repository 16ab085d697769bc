// Package pgdriver connects executor targets to PostgreSQL databases through
// pgconn. Statements go over the simple query protocol, so one statement text
// may yield several result sets and every value arrives in text format.
package pgdriver

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tuannm99/sqlfan/internal/sql/executor"
)

const closeTimeout = 5 * time.Second

// Provider opens one connection per target. Targets are database names on
// the server described by the base DSN.
type Provider struct {
	base *pgconn.Config
}

var _ executor.Provider = (*Provider)(nil)

func NewProvider(dsn string, connectTimeout time.Duration) (*Provider, error) {
	cfg, err := pgconn.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgdriver: parse dsn: %w", err)
	}
	if connectTimeout > 0 {
		cfg.ConnectTimeout = connectTimeout
	}
	return &Provider{base: cfg}, nil
}

func (p *Provider) Open(ctx context.Context, target string) (executor.Conn, error) {
	cfg := p.base.Copy()
	cfg.Database = target

	pg, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &conn{pg: pg}, nil
}

type conn struct {
	pg *pgconn.PgConn
}

func (c *conn) Execute(ctx context.Context, stmt string) (executor.Cursor, error) {
	mrr := c.pg.Exec(ctx, stmt)
	cur := &cursor{conn: c, mrr: mrr}
	if !mrr.NextResult() {
		cur.mrrClosed = true
		if err := mrr.Close(); err != nil {
			return nil, c.classify(err)
		}
	} else {
		cur.rr = mrr.ResultReader()
	}
	return cur, nil
}

// Commit ends a transaction the statement left open. Outside a transaction
// every statement has already been committed by the server.
func (c *conn) Commit(ctx context.Context) error {
	switch c.pg.TxStatus() {
	case 'T', 'E':
		if err := c.pg.Exec(ctx, "COMMIT").Close(); err != nil {
			return c.classify(err)
		}
	}
	return nil
}

func (c *conn) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.pg.Close(ctx)
}

// classify marks errors after which the connection is unusable.
func (c *conn) classify(err error) error {
	if c.pg.IsClosed() {
		return executor.ConnectionLost(err)
	}
	return err
}

// cursor is positioned on one result reader of a multi-result read.
type cursor struct {
	conn *conn
	mrr  *pgconn.MultiResultReader
	rr   *pgconn.ResultReader

	mrrClosed bool
	// done is set once rr has been closed and tag/err hold its outcome.
	done bool
	tag  pgconn.CommandTag
	err  error
}

func (c *cursor) Columns() []string {
	if c.rr == nil {
		return nil
	}
	fds := c.rr.FieldDescriptions()
	if len(fds) == 0 {
		return nil
	}
	cols := make([]string, len(fds))
	for i, fd := range fds {
		cols[i] = fd.Name
	}
	return cols
}

func (c *cursor) FetchBatch(n int) ([][]any, error) {
	if c.rr == nil || c.done {
		return nil, c.err
	}
	rows := make([][]any, 0, n)
	for len(rows) < n && c.rr.NextRow() {
		vals := c.rr.Values()
		row := make([]any, len(vals))
		for i, v := range vals {
			if v != nil {
				row[i] = string(v)
			}
		}
		rows = append(rows, row)
	}
	if len(rows) < n {
		if err := c.finish(); err != nil {
			return nil, err
		}
	}
	return rows, nil
}

func (c *cursor) AffectedRows() (int64, error) {
	if err := c.finish(); err != nil {
		return 0, err
	}
	return c.tag.RowsAffected(), nil
}

func (c *cursor) NextResultSet() (bool, error) {
	if err := c.finish(); err != nil {
		return false, err
	}
	if c.mrrClosed {
		return false, nil
	}
	if !c.mrr.NextResult() {
		c.mrrClosed = true
		if err := c.mrr.Close(); err != nil {
			return false, c.conn.classify(err)
		}
		return false, nil
	}
	c.rr = c.mrr.ResultReader()
	c.done = false
	c.tag = pgconn.CommandTag{}
	return true, nil
}

func (c *cursor) Close() error {
	ferr := c.finish()
	if c.mrrClosed {
		return ferr
	}
	c.mrrClosed = true
	if err := c.mrr.Close(); err != nil {
		return c.conn.classify(err)
	}
	return ferr
}

func (c *cursor) finish() error {
	if c.rr == nil || c.done {
		return c.err
	}
	c.done = true
	c.tag, c.err = c.rr.Close()
	if c.err != nil {
		c.err = c.conn.classify(c.err)
	}
	return c.err
}
