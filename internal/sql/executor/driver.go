package executor

import (
	"context"
	"errors"
	"fmt"
)

// Provider opens connections to named targets on one server.
type Provider interface {
	Open(ctx context.Context, target string) (Conn, error)
}

// Conn is a connection scoped to a single target. It is never shared
// between goroutines.
type Conn interface {
	Execute(ctx context.Context, stmt string) (Cursor, error)
	Commit(ctx context.Context) error
	Close() error
}

// Cursor walks the result sets produced by one Execute call. It starts
// positioned on the first result set.
type Cursor interface {
	// Columns returns nil when the current result set carries no column
	// metadata.
	Columns() []string
	// FetchBatch returns up to n rows. An empty batch means the current
	// result set is drained.
	FetchBatch(n int) ([][]any, error)
	AffectedRows() (int64, error)
	NextResultSet() (bool, error)
	Close() error
}

// ErrConnectionLost marks driver errors that invalidate the whole
// connection rather than one statement.
var ErrConnectionLost = errors.New("executor: connection lost")

type lostConnError struct {
	err error
}

func (e *lostConnError) Error() string        { return e.err.Error() }
func (e *lostConnError) Unwrap() error        { return e.err }
func (e *lostConnError) Is(target error) bool { return target == ErrConnectionLost }

// ConnectionLost wraps err so that errors.Is(err, ErrConnectionLost) holds
// while keeping the driver's message unchanged.
func ConnectionLost(err error) error {
	if err == nil || errors.Is(err, ErrConnectionLost) {
		return err
	}
	return &lostConnError{err: err}
}

// ConnectionError reports a target that could not be reached, or whose
// connection broke mid-run.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Target, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// StatementError reports a single failed statement.
type StatementError struct {
	Index int
	Err   error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d: %v", e.Index, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }
