package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlfan/internal/history"
	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/sqlclient"
)

type fakeBackend struct {
	submitted []string
	targets   [][]string
	dbs       []string
	err       error
}

func (f *fakeBackend) Submit(_ context.Context, targets []string, query string, fn func(run.Event)) error {
	f.submitted = append(f.submitted, query)
	f.targets = append(f.targets, targets)
	if f.err != nil {
		fn(run.Error("no databases selected"))
		fn(run.Done())
		return f.err
	}
	fn(run.Status("Connecting to " + targets[0] + "..."))
	fn(run.Event{Kind: run.EventSummary, Text: "SUMMARY"})
	fn(run.Done())
	return nil
}

func (f *fakeBackend) Databases(context.Context) ([]string, error) { return f.dbs, nil }
func (f *fakeBackend) Close() error                                 { return nil }

func newSession(t *testing.T, be backend) (*session, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	h := history.New(filepath.Join(t.TempDir(), "history.yaml"), 10)
	return &session{be: be, hist: h, out: &out}, &out
}

func TestSession_AccumulatesUntilGo(t *testing.T) {
	be := &fakeBackend{}
	s, out := newSession(t, be)
	ctx := context.Background()

	require.False(t, s.line(ctx, `\use app, reporting`))
	require.False(t, s.line(ctx, "SELECT 1;"))
	require.False(t, s.line(ctx, "SELECT 2;"))
	require.Empty(t, be.submitted)
	require.True(t, s.buffered())

	require.False(t, s.line(ctx, `\g`))
	require.Equal(t, []string{"SELECT 1;\nSELECT 2;"}, be.submitted)
	require.Equal(t, []string{"app", "reporting"}, be.targets[0])
	require.False(t, s.buffered())
	require.Contains(t, out.String(), "-- Connecting to app...")
	require.Contains(t, out.String(), "SUMMARY")

	entries := s.hist.Entries()
	require.Len(t, entries, 1)
	require.Equal(t, "SELECT 1;\nSELECT 2;", entries[0].Query)
}

func TestSession_TrailingGo(t *testing.T) {
	be := &fakeBackend{}
	s, _ := newSession(t, be)
	s.targets = []string{"a"}

	s.line(context.Background(), `SELECT 1 \g`)
	require.Equal(t, []string{"SELECT 1"}, be.submitted)
}

func TestSession_DestructiveNeedsConfirmation(t *testing.T) {
	be := &fakeBackend{}
	s, out := newSession(t, be)
	s.targets = []string{"a"}

	answer := false
	s.confirm = func(string) bool { return answer }

	require.NoError(t, s.submit(context.Background(), "DELETE FROM t; SELECT 1"))
	require.Empty(t, be.submitted)
	require.Contains(t, out.String(), "1 destructive statement(s) on 1 database(s)")
	require.Contains(t, out.String(), "DELETE FROM t")
	require.Contains(t, out.String(), "cancelled")

	answer = true
	require.NoError(t, s.submit(context.Background(), "DELETE FROM t; SELECT 1"))
	require.Len(t, be.submitted, 1)
}

func TestSession_RejectedPrintedOnce(t *testing.T) {
	be := &fakeBackend{err: errors.Join(sqlclient.ErrRejected, errors.New("no databases selected"))}
	s, out := newSession(t, be)

	s.line(context.Background(), `SELECT 1 \g`)
	require.Equal(t, 1, bytes.Count(out.Bytes(), []byte("no databases selected")))
	require.Empty(t, s.hist.Entries())
}

func TestSession_LoadHistory(t *testing.T) {
	be := &fakeBackend{}
	s, _ := newSession(t, be)
	s.targets = []string{"a", "b"}
	ctx := context.Background()

	s.line(ctx, `SELECT 42 \g`)
	s.targets = nil

	s.line(ctx, `\load 1`)
	require.Equal(t, "SELECT 42", s.buf.String())
	require.Equal(t, []string{"a", "b"}, s.targets)

	s.line(ctx, `\reset`)
	require.False(t, s.buffered())
}

func TestSession_MetaCommands(t *testing.T) {
	be := &fakeBackend{dbs: []string{"app", "reporting"}}
	s, out := newSession(t, be)
	ctx := context.Background()

	s.line(ctx, `\dbs`)
	require.Contains(t, out.String(), "app\nreporting\n")

	s.line(ctx, `\targets`)
	require.Contains(t, out.String(), "no targets")

	s.line(ctx, `\load x`)
	require.Contains(t, out.String(), "usage: \\load N")

	s.line(ctx, `\nope`)
	require.Contains(t, out.String(), `unknown command: \nope`)

	require.True(t, s.line(ctx, "quit"))
	require.True(t, s.line(ctx, `\q`))
}

func TestParseTargets(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, parseTargets(" a, ,b ,"))
	require.Nil(t, parseTargets(""))
}
