package fanwire

import "github.com/tuannm99/sqlfan/internal/run"

type Op string

const (
	// OpSubmit runs SQL against Targets. The server answers with a stream of
	// responses carrying events, ending with a done event.
	OpSubmit Op = "submit"
	// OpDatabases lists the databases a client may target.
	OpDatabases Op = "databases"
)

type Request struct {
	ID      uint64   `json:"id"`
	Op      Op       `json:"op"`
	Targets []string `json:"targets,omitempty"`
	SQL     string   `json:"sql,omitempty"`
}

// Response answers the request with the same ID. A submit produces one
// response per event, or several for an event whose text exceeds ChunkSize;
// a databases request produces exactly one.
type Response struct {
	ID    uint64     `json:"id"`
	Event *run.Event `json:"event,omitempty"`
	// More is set when Event.Text continues in the next response.
	More      bool     `json:"more,omitempty"`
	Databases []string   `json:"databases,omitempty"`
	Error     string     `json:"error,omitempty"`
}
