package sqlclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/server/fanwire"
)

// ErrRejected wraps the text of an error event: the server refused the
// submission before any target was contacted.
var ErrRejected = errors.New("sqlclient: submission rejected")

// Client is a simple synchronous client.
// It locks send/recv so concurrent calls serialize; a submit holds the
// connection until its done event arrives.
type Client struct {
	conn net.Conn
	mu   sync.Mutex
	id   atomic.Uint64

	// Optional per-frame timeout (0 = no timeout).
	rwTimeout time.Duration
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	return DialContext(context.Background(), addr, timeout)
}

func DialContext(ctx context.Context, addr string, timeout time.Duration) (*Client, error) {
	d := net.Dialer{Timeout: timeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: c}, nil
}

// SetRWTimeout bounds the wait for each frame. A run streaming events keeps
// the connection alive as long as frames arrive within d.
func (c *Client) SetRWTimeout(d time.Duration) {
	if c == nil {
		return
	}
	c.rwTimeout = d
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Submit sends query for targets and calls fn for every event up to and
// including done. Events split over several frames are joined before fn
// sees them. A rejected submission returns an error wrapping ErrRejected.
func (c *Client) Submit(ctx context.Context, targets []string, query string, fn func(run.Event)) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("sqlclient: nil client")
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	defer func() {
		// Clear deadline after request so idle connection doesn't expire.
		_ = c.conn.SetDeadline(time.Time{})
	}()

	if err := c.applyDeadline(ctx); err != nil {
		return err
	}
	req := fanwire.Request{ID: reqID, Op: fanwire.OpSubmit, Targets: targets, SQL: query}
	if err := fanwire.WriteFrame(c.conn, req); err != nil {
		return err
	}

	var (
		rejected error
		pending  *run.Event
		seen     int
	)
	for {
		if err := c.applyDeadline(ctx); err != nil {
			return err
		}
		var resp fanwire.Response
		if err := fanwire.ReadFrame(c.conn, &resp); err != nil {
			return err
		}
		if resp.ID != reqID {
			return fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, reqID)
		}
		if resp.Error != "" {
			return errors.New(resp.Error)
		}
		if resp.Event == nil {
			return fmt.Errorf("sqlclient: response %d carries no event", reqID)
		}

		ev := *resp.Event
		if pending != nil && pending.Kind == ev.Kind {
			ev.Text = pending.Text + ev.Text
		}
		if resp.More {
			pending = &ev
			continue
		}
		pending = nil
		seen++

		// Only a submission refused up front starts with an error event.
		if ev.Kind == run.EventError && seen == 1 {
			rejected = fmt.Errorf("%w: %s", ErrRejected, ev.Text)
		}
		if fn != nil {
			fn(ev)
		}
		if ev.Kind == run.EventDone {
			return rejected
		}
	}
}

// Databases asks the server for the databases it can run against.
func (c *Client) Databases(ctx context.Context) ([]string, error) {
	if c == nil || c.conn == nil {
		return nil, fmt.Errorf("sqlclient: nil client")
	}

	reqID := c.id.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}
	defer func() {
		_ = c.conn.SetDeadline(time.Time{})
	}()

	req := fanwire.Request{ID: reqID, Op: fanwire.OpDatabases}
	if err := fanwire.WriteFrame(c.conn, req); err != nil {
		return nil, err
	}

	var resp fanwire.Response
	if err := fanwire.ReadFrame(c.conn, &resp); err != nil {
		return nil, err
	}
	if resp.ID != reqID {
		return nil, fmt.Errorf("sqlclient: response id mismatch: got=%d want=%d", resp.ID, reqID)
	}
	if resp.Error != "" {
		return nil, errors.New(resp.Error)
	}
	return resp.Databases, nil
}

func (c *Client) applyDeadline(ctx context.Context) error {
	// Prefer context deadline if present; otherwise use rwTimeout.
	if dl, ok := ctx.Deadline(); ok {
		return c.conn.SetDeadline(dl)
	}
	if c.rwTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.rwTimeout))
	}
	return nil
}
