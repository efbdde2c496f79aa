// Package athena drives queries against the AWS Athena service.  Athena does
// not return results synchronously: a statement is submitted, the returned
// execution ID is polled until the query reaches a terminal state, and the
// results are then fetched page by page.  The Executor owns that state
// machine; the Client translates the individual primitives into SDK calls.
package athena

import "context"

// Handle is the opaque identifier of one submitted query execution.  It is
// valid for status and result calls only, and is never reused across
// requests.
type Handle string

// State is the execution state of a query as reported by the service.
type State int

const (
	// StateQueued covers both QUEUED and the brief period right after
	// submission.
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "QUEUED"
	case StateRunning:
		return "RUNNING"
	case StateSucceeded:
		return "SUCCEEDED"
	case StateFailed:
		return "FAILED"
	case StateCancelled:
		return "CANCELLED"
	}
	return "UNKNOWN"
}

// Terminal reports whether no further state transitions can occur.
func (s State) Terminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateCancelled:
		return true
	}
	return false
}

// Status is the result of one status poll.  Reason carries the provider's
// failure explanation when State is StateFailed.
type Status struct {
	State  State
	Reason string
}

// Request describes one query to execute.  It is immutable once submitted.
type Request struct {
	Statement      string
	DataCatalog    string
	Catalog        string // database within the data catalog
	Workgroup      string
	OutputLocation string // s3:// URI; a unique suffix is appended per submission
}

// Column describes one result column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Page is one page of query results.  NextToken is empty on the last page.
// Row order within and across pages is defined by the service and is
// preserved as-is.
type Page struct {
	Columns   []Column
	Rows      [][]string
	NextToken string
}

// Querier performs the three query primitives and the catalog metadata
// lookups.  Implementations do no polling and no retries; errors returned
// are already classified.  The narrow interface exists so the Executor can
// be driven by a deterministic fake in tests.
type Querier interface {
	Submit(ctx context.Context, req Request) (Handle, error)
	Status(ctx context.Context, h Handle) (Status, error)
	FetchPage(ctx context.Context, h Handle, nextToken string, maxResults int32) (Page, error)
}
