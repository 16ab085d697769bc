package run

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/sqlfan/internal/sql/executor"
	"github.com/tuannm99/sqlfan/internal/sql/executor/executortest"
)

// ---- fakes ----

// gateProvider blocks every Open until release is closed.
type gateProvider struct {
	inner   executor.Provider
	entered chan struct{}
	release chan struct{}
}

func (g *gateProvider) Open(ctx context.Context, target string) (executor.Conn, error) {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return g.inner.Open(ctx, target)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

const query = "SELECT id FROM t; UPDATE t SET a = 1"

func threeTargets() *executortest.Provider {
	sel := executortest.Reply{Sets: []executortest.ResultSet{{
		Columns: []string{"id"},
		Rows:    [][]any{{1}, {2}},
	}}}
	upd := executortest.Reply{Sets: []executortest.ResultSet{{Affected: 7}}}

	return executortest.NewProvider().
		Add("A", &executortest.Target{Replies: map[string]executortest.Reply{
			"SELECT id FROM t": sel, "UPDATE t SET a = 1": upd,
		}}).
		Add("B", &executortest.Target{OpenErr: errors.New("network unreachable")}).
		Add("C", &executortest.Target{Replies: map[string]executortest.Reply{
			"SELECT id FROM t": sel, "UPDATE t SET a = 1": upd,
		}})
}

func drain(t *testing.T, r *Run) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-r.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("run did not finish")
		}
	}
}

func kinds(evs []Event) []EventKind {
	out := make([]EventKind, len(evs))
	for i, ev := range evs {
		out[i] = ev.Kind
	}
	return out
}

// ---- tests: validation ----

func TestStart_Validation(t *testing.T) {
	cases := []struct {
		name    string
		targets []string
		query   string
		want    error
	}{
		{"empty query", []string{"A"}, "", ErrEmptyQuery},
		{"blank query", []string{"A"}, "  \n\t", ErrEmptyQuery},
		{"no targets", nil, "SELECT 1", ErrNoTargets},
		{"blank targets", []string{" ", ""}, "SELECT 1", ErrNoTargets},
		{"only comments", []string{"A"}, "-- nothing here\n/* or here */", ErrNoStatements},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := threeTargets()
			o := New(p, Config{Logger: testLogger()})

			r, err := o.Start(context.Background(), tc.targets, tc.query)
			require.Nil(t, r)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrValidation)
			require.Zero(t, p.OpenCount())
			require.Equal(t, StateIdle, o.State())
		})
	}
}

// ---- tests: run ----

func TestSubmit_ConnectionFailureIsIsolated(t *testing.T) {
	p := threeTargets()
	o := New(p, Config{Logger: testLogger()})

	var evs []Event
	s, err := o.Submit(context.Background(), []string{"A", "B", "C"}, query, func(ev Event) {
		evs = append(evs, ev)
	})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)
	require.Equal(t, query, s.Query)
	require.Equal(t, []string{"A", "B", "C"}, s.Targets)

	require.Len(t, s.Records, 3)
	a, b, c := s.Records[0], s.Records[1], s.Records[2]
	require.Equal(t, "A", a.Target)
	require.Equal(t, "B", b.Target)
	require.Equal(t, "C", c.Target)

	require.Equal(t, executor.StatusSuccess, a.Status)
	require.Equal(t, executor.StatusSuccess, c.Status)
	require.EqualValues(t, 2, a.TotalRows)
	require.EqualValues(t, 2, c.TotalRows)
	require.EqualValues(t, 4, s.TotalRows)

	require.Equal(t, executor.StatusFailed, b.Status)
	require.Len(t, b.Errors, 1)
	require.Contains(t, b.Errors[0], "network unreachable")
	require.Zero(t, b.StatementCount)
	require.Len(t, b.Blocks, 1)

	// every target ran the same statements
	require.Equal(t, []string{"SELECT id FROM t", "UPDATE t SET a = 1"}, p.Executed["A"])
	require.Equal(t, p.Executed["A"], p.Executed["C"])

	require.Equal(t, EventDone, evs[len(evs)-1].Kind)
	require.Equal(t, StateIdle, o.State())
}

func TestRun_EventOrder(t *testing.T) {
	o := New(threeTargets(), Config{Logger: testLogger()})

	r, err := o.Start(context.Background(), []string{"A", "B", "C"}, query)
	require.NoError(t, err)
	require.Equal(t, []string{"SELECT id FROM t", "UPDATE t SET a = 1"}, r.Statements())

	evs := drain(t, r)
	s := r.Wait()

	require.Equal(t, []EventKind{
		EventStatus, EventStatus, EventStatus, // A: connect, 2 statements
		EventStatus,                           // B: connect fails
		EventStatus, EventStatus, EventStatus, // C
		EventSummary,
		EventResult, EventResult, // C
		EventResult,              // B
		EventResult, EventResult, // A
		EventEnableExport,
		EventDone,
	}, kinds(evs))

	require.Equal(t, "Connecting to A...", evs[0].Text)
	require.Equal(t, "Executing statement 1/2 on A...", evs[1].Text)
	require.Equal(t, "Executing statement 2/2 on A...", evs[2].Text)
	require.Equal(t, "Connecting to B...", evs[3].Text)
	require.Equal(t, "Connecting to C...", evs[4].Text)
	require.Equal(t, "Executing statement 2/2 on C...", evs[6].Text)
	require.Contains(t, evs[7].Text, "EXECUTION SUMMARY")

	// summary keeps completion order
	summary := evs[7].Text
	require.Less(t, strings.Index(summary, "| A "), strings.Index(summary, "| B "))
	require.Less(t, strings.Index(summary, "| B "), strings.Index(summary, "| C "))

	// blocks stream last target first, statements in order within a target
	require.Equal(t, s.Records[2].Blocks[0], evs[8].Text)
	require.Equal(t, s.Records[2].Blocks[1], evs[9].Text)
	require.Contains(t, evs[10].Text, "Connection error with B")
	require.Contains(t, evs[11].Text, "Results from Statement 1 on A")
	require.Contains(t, evs[12].Text, "Statement 2 executed on A")
}

func TestStart_RejectsWhileRunning(t *testing.T) {
	gate := &gateProvider{
		inner:   threeTargets(),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	o := New(gate, Config{Logger: testLogger()})

	r, err := o.Start(context.Background(), []string{"A"}, query)
	require.NoError(t, err)
	<-gate.entered
	require.Equal(t, StateRunning, o.State())

	_, err = o.Start(context.Background(), []string{"C"}, query)
	require.ErrorIs(t, err, ErrRunInProgress)

	close(gate.release)
	drain(t, r)
	r.Wait()
	require.Equal(t, StateIdle, o.State())

	r2, err := o.Start(context.Background(), []string{"C"}, query)
	require.NoError(t, err)
	drain(t, r2)
	require.NotEqual(t, r.ID(), r2.ID())
}

func TestRun_Parallel(t *testing.T) {
	p := threeTargets()
	o := New(p, Config{Parallelism: 3, BatchSize: 1, Logger: testLogger()})

	s, err := o.Submit(context.Background(), []string{"A", "B", "C"}, query, nil)
	require.NoError(t, err)
	require.Len(t, s.Records, 3)

	byTarget := map[string]*executor.Record{}
	for _, rec := range s.Records {
		byTarget[rec.Target] = rec
	}
	require.Equal(t, executor.StatusSuccess, byTarget["A"].Status)
	require.Equal(t, executor.StatusFailed, byTarget["B"].Status)
	require.Equal(t, executor.StatusSuccess, byTarget["C"].Status)
	require.EqualValues(t, 4, s.TotalRows)
	require.Equal(t, 1, p.MaxFetch)
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "running", StateRunning.String())
}
