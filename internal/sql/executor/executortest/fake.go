// Package executortest provides an in-memory executor.Provider for tests.
package executortest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tuannm99/sqlfan/internal/sql/executor"
)

// ResultSet scripts one result set. Columns == nil means an affected-count
// result.
type ResultSet struct {
	Columns  []string
	Rows     [][]any
	Affected int64
}

// Reply scripts the response to one statement text.
type Reply struct {
	Sets []ResultSet
	Err  error
	// Lost makes Err a connection-level failure.
	Lost bool
	// FailOnNext makes the error surface from NextResultSet after the
	// first set was drained.
	FailOnNext bool
	// FailOnFetch makes the error surface from the first FetchBatch.
	FailOnFetch bool
}

// Target scripts one database.
type Target struct {
	OpenErr   error
	CommitErr error
	Replies   map[string]Reply
}

// Provider is safe for concurrent use.
type Provider struct {
	mu      sync.Mutex
	targets map[string]*Target

	Opens    []string
	Executed map[string][]string
	Commits  map[string]int
	Closed   map[string]int
	// MaxFetch records the largest batch size requested.
	MaxFetch int
}

func NewProvider() *Provider {
	return &Provider{
		targets:  make(map[string]*Target),
		Executed: make(map[string][]string),
		Commits:  make(map[string]int),
		Closed:   make(map[string]int),
	}
}

func (p *Provider) Add(name string, t *Target) *Provider {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t.Replies == nil {
		t.Replies = make(map[string]Reply)
	}
	p.targets[name] = t
	return p
}

func (p *Provider) OpenCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Opens)
}

func (p *Provider) Open(ctx context.Context, target string) (executor.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Opens = append(p.Opens, target)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, ok := p.targets[target]
	if !ok {
		return nil, fmt.Errorf("database %q does not exist", target)
	}
	if t.OpenErr != nil {
		return nil, t.OpenErr
	}
	return &conn{p: p, name: target, t: t}, nil
}

type conn struct {
	p    *Provider
	name string
	t    *Target
}

func (c *conn) Execute(ctx context.Context, stmt string) (executor.Cursor, error) {
	c.p.mu.Lock()
	c.p.Executed[c.name] = append(c.p.Executed[c.name], stmt)
	c.p.mu.Unlock()

	reply, ok := c.t.Replies[stmt]
	if !ok {
		return &cursor{p: c.p, sets: []ResultSet{{}}}, nil
	}
	if reply.Err != nil && !reply.FailOnNext && !reply.FailOnFetch {
		return nil, c.wrap(reply)
	}
	return &cursor{p: c.p, sets: reply.Sets, reply: reply, c: c}, nil
}

func (c *conn) wrap(r Reply) error {
	if r.Lost {
		return executor.ConnectionLost(r.Err)
	}
	return r.Err
}

func (c *conn) Commit(context.Context) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.Commits[c.name]++
	return c.t.CommitErr
}

func (c *conn) Close() error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	c.p.Closed[c.name]++
	return nil
}

type cursor struct {
	p     *Provider
	c     *conn
	reply Reply
	sets  []ResultSet
	pos   int
	row   int
}

func (c *cursor) current() *ResultSet {
	if c.pos >= len(c.sets) {
		return nil
	}
	return &c.sets[c.pos]
}

func (c *cursor) Columns() []string {
	if rs := c.current(); rs != nil {
		return rs.Columns
	}
	return nil
}

func (c *cursor) FetchBatch(n int) ([][]any, error) {
	c.p.mu.Lock()
	if n > c.p.MaxFetch {
		c.p.MaxFetch = n
	}
	c.p.mu.Unlock()

	if c.reply.FailOnFetch {
		return nil, c.c.wrap(c.reply)
	}
	rs := c.current()
	if rs == nil {
		return nil, nil
	}
	end := min(c.row+n, len(rs.Rows))
	batch := rs.Rows[c.row:end]
	c.row = end
	return batch, nil
}

func (c *cursor) AffectedRows() (int64, error) {
	if rs := c.current(); rs != nil {
		return rs.Affected, nil
	}
	return 0, nil
}

func (c *cursor) NextResultSet() (bool, error) {
	if c.reply.FailOnNext {
		return false, c.c.wrap(c.reply)
	}
	c.pos++
	c.row = 0
	return c.pos < len(c.sets), nil
}

func (c *cursor) Close() error { return nil }

// ErrBoom is a convenient scripted failure.
var ErrBoom = errors.New("boom")
