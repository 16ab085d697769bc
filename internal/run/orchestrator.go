package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tuannm99/sqlfan/internal/format"
	"github.com/tuannm99/sqlfan/internal/sql/executor"
	"github.com/tuannm99/sqlfan/internal/sql/splitter"
)

var (
	ErrValidation   = errors.New("run: invalid submission")
	ErrEmptyQuery   = fmt.Errorf("%w: query cannot be empty", ErrValidation)
	ErrNoTargets    = fmt.Errorf("%w: no databases selected", ErrValidation)
	ErrNoStatements = fmt.Errorf("%w: no valid SQL statements found", ErrValidation)

	ErrRunInProgress = errors.New("run: a query is already running")
)

type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

const defaultEventBuffer = 64

type Config struct {
	// BatchSize is the number of rows fetched from the driver at once.
	BatchSize int
	// Parallelism > 1 runs up to that many targets at the same time.
	Parallelism int
	EventBuffer int
	Logger      *slog.Logger
}

// Orchestrator runs one submission at a time against a list of targets.
type Orchestrator struct {
	exec   *executor.Executor
	format *format.Formatter
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	state State
}

func New(provider executor.Provider, cfg Config) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	f := format.New()
	return &Orchestrator{
		exec: executor.NewExecutor(provider, f, executor.Config{
			BatchSize: cfg.BatchSize,
			Logger:    cfg.Logger,
		}),
		format: f,
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Start validates a submission and, if it is accepted, runs it in the
// background. Validation failures and a run already in flight are reported
// here, before any connection is opened.
//
// ctx bounds connection attempts and driver calls of the run; a cancelled
// context shows up as failures in the records, the run still completes.
func (o *Orchestrator) Start(ctx context.Context, targets []string, query string) (*Run, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	targets = cleanTargets(targets)
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	statements := splitter.Split(query)
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	o.mu.Lock()
	if o.state == StateRunning {
		o.mu.Unlock()
		return nil, ErrRunInProgress
	}
	o.state = StateRunning
	o.mu.Unlock()

	r := &Run{
		summary: &executor.Summary{
			ID:        uuid.NewString(),
			Query:     query,
			Targets:   targets,
			StartedAt: time.Now(),
		},
		statements: statements,
		events:     make(chan Event, o.cfg.EventBuffer),
		done:       make(chan struct{}),
	}
	o.logger.Info("run started",
		"run", r.summary.ID, "targets", len(targets), "statements", len(statements))

	go o.execute(ctx, r)
	return r, nil
}

// Submit is Start followed by draining the event stream into fn.
func (o *Orchestrator) Submit(ctx context.Context, targets []string, query string, fn func(Event)) (*executor.Summary, error) {
	r, err := o.Start(ctx, targets, query)
	if err != nil {
		return nil, err
	}
	for ev := range r.Events() {
		if fn != nil {
			fn(ev)
		}
	}
	return r.Wait(), nil
}

func (o *Orchestrator) execute(ctx context.Context, r *Run) {
	defer close(r.done)
	defer close(r.events)

	if o.cfg.Parallelism > 1 && len(r.summary.Targets) > 1 {
		o.runParallel(ctx, r)
	} else {
		o.runSequential(ctx, r)
	}

	s := r.summary
	s.Elapsed = time.Since(s.StartedAt)
	for _, rec := range s.Records {
		s.TotalRows += rec.TotalRows
	}

	r.emit(Event{Kind: EventSummary, Text: o.format.Summary(s)})
	// Result blocks go out last-completed target first.
	for i := len(s.Records) - 1; i >= 0; i-- {
		for _, b := range s.Records[i].Blocks {
			r.emit(Event{Kind: EventResult, Text: b})
		}
	}
	r.emit(Event{Kind: EventEnableExport})

	o.logger.Info("run finished",
		"run", s.ID, "elapsed", s.Elapsed, "rows", s.TotalRows, "failed", failedTargets(s))

	o.mu.Lock()
	o.state = StateIdle
	o.mu.Unlock()

	r.emit(Done())
}

func (o *Orchestrator) runSequential(ctx context.Context, r *Run) {
	for _, target := range r.summary.Targets {
		r.emit(Status(fmt.Sprintf("Connecting to %s...", target)))
		rec := o.exec.Run(ctx, target, r.statements, o.observe(r))
		r.summary.Records = append(r.summary.Records, rec)
	}
}

func (o *Orchestrator) runParallel(ctx context.Context, r *Run) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(o.cfg.Parallelism)
	for _, target := range r.summary.Targets {
		g.Go(func() error {
			r.emit(Status(fmt.Sprintf("Connecting to %s...", target)))
			rec := o.exec.Run(ctx, target, r.statements, o.observe(r))
			mu.Lock()
			r.summary.Records = append(r.summary.Records, rec)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) observe(r *Run) executor.Observer {
	total := len(r.statements)
	return func(target string, out executor.Outcome) {
		if out.Kind == executor.OutcomeStarted {
			r.emit(Status(fmt.Sprintf("Executing statement %d/%d on %s...", out.Statement, total, target)))
			return
		}
		o.logger.Debug("outcome",
			"run", r.summary.ID,
			"target", target,
			"statement", out.Statement,
			"result_set", out.ResultSet,
			"kind", out.Kind.String())
	}
}

func cleanTargets(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func failedTargets(s *executor.Summary) int {
	n := 0
	for _, rec := range s.Records {
		if rec.Status == executor.StatusFailed {
			n++
		}
	}
	return n
}

// Run is a submission in flight.
type Run struct {
	summary    *executor.Summary
	statements []string
	events     chan Event
	done       chan struct{}
}

func (r *Run) ID() string { return r.summary.ID }

// Statements returns the units every target of this run executes.
func (r *Run) Statements() []string { return r.statements }

// Events is closed right after the Done event. The consumer must drain it
// for the run to progress.
func (r *Run) Events() <-chan Event { return r.events }

// Wait blocks until the run has finished and returns its summary.
func (r *Run) Wait() *executor.Summary {
	<-r.done
	return r.summary
}

func (r *Run) emit(ev Event) { r.events <- ev }
