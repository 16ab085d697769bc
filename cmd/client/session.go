package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/tuannm99/sqlfan/internal/history"
	"github.com/tuannm99/sqlfan/internal/run"
	"github.com/tuannm99/sqlfan/internal/sql/splitter"
	"github.com/tuannm99/sqlfan/sqlclient"
)

const helpText = `meta commands:
  \q | quit | exit       quit
  \g                     run the buffered query (may end a line)
  \reset                 clear the buffer
  \dbs                   list databases
  \use a,b,c             set target databases
  \targets               show target databases
  \history               print history
  \load N                put history entry N into the buffer
  \help                  show help

sql:
  multiline input accumulates until \g
  statements are split on ';' and GO batch lines`

// session is the REPL state independent of the terminal.
type session struct {
	be      backend
	hist    *history.History
	out     io.Writer
	targets []string

	// confirm asks before destructive statements run. nil means yes.
	confirm func(prompt string) bool

	buf strings.Builder
}

func (s *session) buffered() bool { return strings.TrimSpace(s.buf.String()) != "" }

func (s *session) reset() { s.buf.Reset() }

func (s *session) add(line string) {
	if s.buf.Len() > 0 {
		s.buf.WriteByte('\n')
	}
	s.buf.WriteString(line)
}

func isMetaCommand(line string) bool {
	line = strings.TrimSpace(line)
	return strings.HasPrefix(line, "\\") ||
		line == "quit" || line == "exit"
}

// line consumes one input line. It reports whether the REPL should stop.
func (s *session) line(ctx context.Context, line string) (quit bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		if s.buffered() {
			s.add(line)
		}
		return false
	}

	if strings.HasSuffix(trimmed, `\g`) && trimmed != `\g` {
		s.add(strings.TrimRight(strings.TrimSuffix(strings.TrimRight(line, " \t"), `\g`), " \t"))
		s.flush(ctx)
		return false
	}
	if !isMetaCommand(trimmed) {
		s.add(line)
		return false
	}

	cmd, arg, _ := strings.Cut(trimmed, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case `\q`, "quit", "exit":
		return true
	case `\g`:
		s.flush(ctx)
	case `\reset`:
		s.reset()
	case `\help`:
		fmt.Fprintln(s.out, helpText)
	case `\dbs`:
		dbs, err := s.be.Databases(ctx)
		if err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
			return false
		}
		for _, db := range dbs {
			fmt.Fprintln(s.out, db)
		}
	case `\use`:
		s.targets = parseTargets(arg)
		fmt.Fprintf(s.out, "targets: %s\n", strings.Join(s.targets, ", "))
	case `\targets`:
		if len(s.targets) == 0 {
			fmt.Fprintln(s.out, "no targets, use \\use a,b")
			return false
		}
		fmt.Fprintln(s.out, strings.Join(s.targets, ", "))
	case `\history`:
		s.printHistory()
	case `\load`:
		n, err := strconv.Atoi(arg)
		if err != nil {
			fmt.Fprintf(s.out, "usage: \\load N\n")
			return false
		}
		e, ok := s.hist.Get(n)
		if !ok {
			fmt.Fprintf(s.out, "no history entry %d\n", n)
			return false
		}
		s.reset()
		s.add(e.Query)
		if len(e.Targets) > 0 {
			s.targets = e.Targets
		}
		fmt.Fprintln(s.out, e.Query)
	default:
		fmt.Fprintf(s.out, "unknown command: %s\n", trimmed)
	}
	return false
}

// flush submits the buffer and clears it.
func (s *session) flush(ctx context.Context) {
	query := s.buf.String()
	s.reset()
	if err := s.submit(ctx, query); err != nil && !errors.Is(err, sqlclient.ErrRejected) {
		// rejections already arrived as an error event
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
}

func (s *session) submit(ctx context.Context, query string) error {
	if risky := splitter.Destructive(splitter.Split(query)); len(risky) > 0 && s.confirm != nil {
		fmt.Fprintf(s.out, "%d destructive statement(s) on %d database(s):\n", len(risky), len(s.targets))
		for _, stmt := range risky {
			fmt.Fprintf(s.out, "  %s\n", history.OneLine(stmt))
		}
		if !s.confirm("continue? [y/N] ") {
			fmt.Fprintln(s.out, "cancelled")
			return nil
		}
	}

	err := s.be.Submit(ctx, s.targets, query, s.printEvent)
	if err != nil {
		return err
	}
	if s.hist != nil {
		if herr := s.hist.Append(history.Entry{At: time.Now(), Targets: s.targets, Query: query}); herr != nil {
			fmt.Fprintf(s.out, "history: %v\n", herr)
		}
	}
	return nil
}

func (s *session) printEvent(ev run.Event) {
	switch ev.Kind {
	case run.EventStatus:
		fmt.Fprintf(s.out, "-- %s\n", ev.Text)
	case run.EventResult, run.EventSummary:
		fmt.Fprintln(s.out, ev.Text)
	case run.EventError:
		fmt.Fprintf(s.out, "error: %s\n", ev.Text)
	}
}

func (s *session) printHistory() {
	if s.hist == nil {
		return
	}
	for i, e := range s.hist.Entries() {
		fmt.Fprintf(s.out, "%5d  %s  [%s]  %s\n",
			i+1, e.At.Format(time.DateTime), strings.Join(e.Targets, ","), history.OneLine(e.Query))
	}
}

func parseTargets(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
