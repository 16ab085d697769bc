package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// DefaultBatchSize bounds how many rows are pulled from the driver at once.
const DefaultBatchSize = 1000

// Renderer turns outcomes into text blocks.
type Renderer interface {
	RowSet(rs *RowSet, target string, stmt, resultSet int) string
	Affected(n int64, target string, stmt int) string
	StatementFailure(target string, stmt int, msg string) string
	ConnectionFailure(target string, msg string) string
}

// Observer sees the start of each statement and every outcome right before
// it is rendered and dropped.
type Observer func(target string, o Outcome)

type Config struct {
	BatchSize int
	Logger    *slog.Logger
}

// Executor runs a statement sequence against one target at a time.
// It holds no per-run state and can serve several targets concurrently.
type Executor struct {
	provider  Provider
	renderer  Renderer
	batchSize int
	logger    *slog.Logger

	// for unit-test: fixed clock
	now func() time.Time
}

func NewExecutor(provider Provider, renderer Renderer, cfg Config) *Executor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		provider:  provider,
		renderer:  renderer,
		batchSize: cfg.BatchSize,
		logger:    cfg.Logger,
		now:       time.Now,
	}
}

// Run executes statements in order on target and always returns a record.
//
// A failing statement is recorded and the next one runs. A connection
// failure, at open time or mid-run, stops the target.
func (e *Executor) Run(ctx context.Context, target string, statements []string, obs Observer) *Record {
	start := e.now()
	rec := &Record{Target: target}
	defer func() {
		rec.Elapsed = e.now().Sub(start)
		rec.Status = StatusSuccess
		if len(rec.Errors) > 0 {
			rec.Status = StatusFailed
		}
	}()

	conn, err := e.provider.Open(ctx, target)
	if err != nil {
		e.connectionFailure(rec, 0, err, obs)
		return rec
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			e.logger.Warn("close connection", "target", target, "err", cerr)
		}
	}()

	for i, stmt := range statements {
		idx := i + 1
		rec.StatementCount++
		if obs != nil {
			obs(target, Outcome{Kind: OutcomeStarted, Statement: idx})
		}

		outcomes, err := e.execStatement(ctx, conn, stmt)
		if err == nil {
			e.record(rec, idx, outcomes, obs)
			err = conn.Commit(ctx)
		}
		if err == nil {
			continue
		}

		if errors.Is(err, ErrConnectionLost) {
			e.connectionFailure(rec, idx, err, obs)
			return rec
		}
		e.statementFailure(rec, idx, err, obs)
	}
	return rec
}

// execStatement executes one statement and drains every result set it
// produced. Nothing is returned for a statement that fails part way.
func (e *Executor) execStatement(ctx context.Context, conn Conn, stmt string) (outcomes []Outcome, err error) {
	cur, err := conn.Execute(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := cur.Close(); err == nil && cerr != nil {
			outcomes, err = nil, cerr
		}
	}()

	for {
		if cols := cur.Columns(); cols != nil {
			rs := &RowSet{Columns: cols}
			for {
				batch, err := cur.FetchBatch(e.batchSize)
				if err != nil {
					return nil, err
				}
				if len(batch) == 0 {
					break
				}
				rs.Rows = append(rs.Rows, batch...)
			}
			outcomes = append(outcomes, Outcome{Kind: OutcomeRows, Rows: rs})
		} else {
			n, err := cur.AffectedRows()
			if err != nil {
				return nil, err
			}
			outcomes = append(outcomes, Outcome{Kind: OutcomeAffected, Affected: n})
		}

		more, err := cur.NextResultSet()
		if err != nil {
			return nil, err
		}
		if !more {
			return outcomes, nil
		}
	}
}

func (e *Executor) record(rec *Record, stmt int, outcomes []Outcome, obs Observer) {
	multi := len(outcomes) > 1
	for j := range outcomes {
		o := &outcomes[j]
		o.Statement = stmt
		if multi {
			o.ResultSet = j + 1
		}
		if obs != nil {
			obs(rec.Target, *o)
		}

		switch o.Kind {
		case OutcomeRows:
			rec.TotalRows += int64(len(o.Rows.Rows))
			rec.Blocks = append(rec.Blocks, e.renderer.RowSet(o.Rows, rec.Target, stmt, o.ResultSet))
		case OutcomeAffected:
			rec.Blocks = append(rec.Blocks, e.renderer.Affected(o.Affected, rec.Target, stmt))
		}
	}
}

func (e *Executor) statementFailure(rec *Record, stmt int, err error, obs Observer) {
	serr := &StatementError{Index: stmt, Err: err}
	e.logger.Warn("statement failed", "target", rec.Target, "statement", stmt, "err", err)
	if obs != nil {
		obs(rec.Target, Outcome{Kind: OutcomeFailure, Statement: stmt, Err: serr})
	}
	rec.Blocks = append(rec.Blocks, e.renderer.StatementFailure(rec.Target, stmt, err.Error()))
	rec.Errors = append(rec.Errors, fmt.Sprintf("Statement %d: %s", stmt, err.Error()))
}

func (e *Executor) connectionFailure(rec *Record, stmt int, err error, obs Observer) {
	cerr := &ConnectionError{Target: rec.Target, Err: err}
	e.logger.Warn("connection failed", "target", rec.Target, "statement", stmt, "err", err)
	if obs != nil {
		obs(rec.Target, Outcome{Kind: OutcomeFailure, Statement: stmt, Err: cerr})
	}
	rec.Blocks = append(rec.Blocks, e.renderer.ConnectionFailure(rec.Target, err.Error()))
	rec.Errors = append(rec.Errors, "Connection: "+err.Error())
}
