package sqlclient

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/internal/sql/executor/executortest"
	"github.com/tuannm99/sqlfan/server/fanwire"
)

type lister []string

func (l lister) Databases(context.Context) ([]string, error) { return l, nil }

func newClient(t *testing.T) *Client {
	t.Helper()

	p := executortest.NewProvider().
		Add("A", &executortest.Target{Replies: map[string]executortest.Reply{
			"SELECT id FROM t": {Sets: []executortest.ResultSet{{Columns: []string{"id"}, Rows: [][]any{{1}}}}},
		}}).
		Add("B", &executortest.Target{Replies: map[string]executortest.Reply{
			"SELECT id FROM t": {Err: executortest.ErrBoom},
		}})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := run.New(p, run.Config{Logger: logger})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- fanwire.Serve(ctx, ln, fanwire.ServerConfig{Lister: lister{"A", "B"}, Logger: logger}, orch)
	}()

	c, err := Dial(ln.Addr().String(), time.Second)
	require.NoError(t, err)
	c.SetRWTimeout(5 * time.Second)

	t.Cleanup(func() {
		_ = c.Close()
		cancel()
		<-done
	})
	return c
}

func TestClient_Submit(t *testing.T) {
	c := newClient(t)

	var evs []run.Event
	err := c.Submit(context.Background(), []string{"A", "B"}, "SELECT id FROM t", func(ev run.Event) {
		evs = append(evs, ev)
	})
	require.NoError(t, err)

	require.Equal(t, run.EventDone, evs[len(evs)-1].Kind)

	var summary string
	for _, ev := range evs {
		if ev.Kind == run.EventSummary {
			summary = ev.Text
		}
	}
	require.Contains(t, summary, "EXECUTION SUMMARY")
	require.Contains(t, summary, "Statement 1: boom")
}

func TestClient_SubmitRejected(t *testing.T) {
	c := newClient(t)

	var evs []run.Event
	err := c.Submit(context.Background(), nil, "SELECT 1", func(ev run.Event) {
		evs = append(evs, ev)
	})
	require.ErrorIs(t, err, ErrRejected)
	require.Contains(t, err.Error(), "no databases selected")
	require.Len(t, evs, 2)

	// the client recovers for the next submission
	require.NoError(t, c.Submit(context.Background(), []string{"A"}, "SELECT id FROM t", nil))
}

func TestClient_Databases(t *testing.T) {
	c := newClient(t)

	dbs, err := c.Databases(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B"}, dbs)
}

func TestClient_Nil(t *testing.T) {
	var c *Client
	require.Error(t, c.Submit(context.Background(), []string{"A"}, "SELECT 1", nil))
	_, err := c.Databases(context.Background())
	require.Error(t, err)
	require.NoError(t, c.Close())
}

// scriptedServer answers the first request with responses, in order.
func scriptedServer(t *testing.T, responses func(id uint64) []fanwire.Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		var req fanwire.Request
		if err := fanwire.ReadFrame(conn, &req); err != nil {
			return
		}
		for _, resp := range responses(req.ID) {
			if err := fanwire.WriteFrame(conn, resp); err != nil {
				return
			}
		}
	}()
	return ln.Addr().String()
}

func TestClient_SubmitJoinsContinuedEvents(t *testing.T) {
	addr := scriptedServer(t, func(id uint64) []fanwire.Response {
		ev := func(kind run.EventKind, text string) *run.Event { return &run.Event{Kind: kind, Text: text} }
		return []fanwire.Response{
			{ID: id, Event: ev(run.EventStatus, "Connecting to A...")},
			{ID: id, Event: ev(run.EventResult, "first half, "), More: true},
			{ID: id, Event: ev(run.EventResult, "second half")},
			{ID: id, Event: ev(run.EventError, "result output dropped")},
			{ID: id, Event: ev(run.EventDone, "")},
		}
	})

	c, err := Dial(addr, time.Second)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()
	c.SetRWTimeout(5 * time.Second)

	var evs []run.Event
	err = c.Submit(context.Background(), []string{"A"}, "SELECT 1", func(ev run.Event) {
		evs = append(evs, ev)
	})
	// an error event after the run started is not a rejection
	require.NoError(t, err)
	require.Equal(t, []run.Event{
		{Kind: run.EventStatus, Text: "Connecting to A..."},
		{Kind: run.EventResult, Text: "first half, second half"},
		{Kind: run.EventError, Text: "result output dropped"},
		{Kind: run.EventDone},
	}, evs)
}
