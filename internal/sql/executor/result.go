package executor

import "time"

// RowSet is one result set that carried column metadata.
type RowSet struct {
	Columns []string
	Rows    [][]any
}

type OutcomeKind int

const (
	OutcomeRows OutcomeKind = iota
	OutcomeAffected
	OutcomeFailure
	// OutcomeStarted marks a statement about to be sent. It carries no
	// result and is never rendered.
	OutcomeStarted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRows:
		return "rows"
	case OutcomeAffected:
		return "affected"
	case OutcomeFailure:
		return "failure"
	case OutcomeStarted:
		return "started"
	default:
		return "unknown"
	}
}

// Outcome is the result of one result set of one statement on one target.
// Exactly one of Rows, Affected or Err is meaningful, selected by Kind;
// none is for OutcomeStarted.
type Outcome struct {
	Kind OutcomeKind

	// Statement is 1-based. It is 0 for a failure to connect.
	Statement int
	// ResultSet is the 1-based position of the set when a statement
	// produced more than one, 0 otherwise.
	ResultSet int

	Rows     *RowSet
	Affected int64
	Err      error
}

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Record is what one target produced during a run.
type Record struct {
	Target         string
	Elapsed        time.Duration
	TotalRows      int64
	StatementCount int
	Errors         []string
	Status         Status

	// Blocks holds the rendered text of every outcome, in statement order.
	Blocks []string
}

// Summary aggregates one run over all of its targets.
type Summary struct {
	ID        string
	Query     string
	Targets   []string
	StartedAt time.Time
	Elapsed   time.Duration
	TotalRows int64

	// Records are kept in completion order.
	Records []*Record
}
