package athena

// In this file: the submit → poll → paginate state machine.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/lakebridge/lakebridge/internal/classify"
	"github.com/lakebridge/lakebridge/internal/network"
)

const (
	defMaxRows      = 100
	defDeadline     = 5 * time.Minute
	defPollInterval = 500 * time.Millisecond
	defPollCap      = 5 * time.Second

	// pageSize is the number of rows requested per result page; 1000 is the
	// service maximum.
	pageSize = 1000

	// statusAttempts bounds retries of a single transient status or
	// page-fetch failure before it is reported as terminal.
	statusAttempts = 3
)

// Options control one Execute call.  Zero values select the defaults.
type Options struct {
	// MaxRows caps the number of returned rows.  Rows beyond the cap are
	// discarded and the result is flagged as truncated.
	MaxRows int
	// Deadline bounds the whole execution, submission to last page.  When it
	// elapses before the query reaches a terminal state, Execute returns a
	// timeout error and leaves the remote query running.
	Deadline time.Duration
	// PollInterval is the initial delay between status polls; it doubles on
	// every non-terminal poll up to PollCap.
	PollInterval time.Duration
	PollCap      time.Duration
}

func (o *Options) fill() {
	if o.MaxRows <= 0 {
		o.MaxRows = defMaxRows
	}
	if o.Deadline <= 0 {
		o.Deadline = defDeadline
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defPollInterval
	}
	if o.PollCap <= 0 {
		o.PollCap = defPollCap
	}
}

// Result is the outcome of a successful execution.  Rows are in the order
// produced by the service.  Truncated indicates that rows beyond MaxRows
// were discarded.
type Result struct {
	Columns   []Column   `json:"columns"`
	Rows      [][]string `json:"rows"`
	Truncated bool       `json:"truncated"`
}

// Executor drives one query from submission to delivered rows or a
// classified terminal failure.  Each Execute call owns its own polling loop
// and timer; an Executor may serve concurrent calls.
type Executor struct {
	q  Querier
	lg *slog.Logger
}

// NewExecutor creates an Executor over q.  lg may be nil.
func NewExecutor(q Querier, lg *slog.Logger) *Executor {
	if lg == nil {
		lg = slog.Default()
	}
	return &Executor{q: q, lg: lg}
}

// Execute submits the request, polls until the query terminates or the
// deadline elapses, and fetches the result pages.  Exactly one terminal
// outcome is returned: a Result, or a classified error.
func (e *Executor) Execute(ctx context.Context, req Request, opt Options) (*Result, error) {
	if req.Statement == "" {
		return nil, classify.New(classify.KindInvalidArgument, "statement must not be empty")
	}
	opt.fill()

	deadline := time.Now().Add(opt.Deadline)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	h, err := e.q.Submit(ctx, req)
	if err != nil {
		// Submission failures are terminal: no query is running, nothing to
		// poll.
		return nil, err
	}
	e.lg.DebugContext(ctx, "query submitted", "handle", h, "catalog", req.Catalog, "workgroup", req.Workgroup)

	if err := e.await(ctx, h, opt, deadline); err != nil {
		return nil, err
	}
	return e.collect(ctx, h, opt.MaxRows)
}

// await polls the query status with capped exponential backoff until a
// terminal state is observed or the deadline elapses.  It returns nil only
// when the service reported SUCCEEDED.
func (e *Executor) await(ctx context.Context, h Handle, opt Options, deadline time.Time) error {
	interval := opt.PollInterval
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return e.timeoutErr(h)
		}
		if err := sleepCtx(ctx, min(interval, remaining)); err != nil {
			return e.loopErr(h, err)
		}

		var st Status
		err := network.WithRetry(ctx, nil, statusAttempts, func() error {
			var err error
			st, err = e.q.Status(ctx, h)
			return err
		})
		if err != nil {
			if errors.Is(err, network.ErrRetryFailed) {
				return classify.Wrap(classify.KindUnavailable, "query status polling failed", err)
			}
			return e.loopErr(h, err)
		}

		e.lg.DebugContext(ctx, "query status", "handle", h, "state", st.State)
		switch st.State {
		case StateSucceeded:
			return nil
		case StateFailed:
			return classifyFailure(st.Reason)
		case StateCancelled:
			return classify.Errorf(classify.KindCancelled, "query %s was cancelled by the service", h)
		}

		if interval *= 2; interval > opt.PollCap {
			interval = opt.PollCap
		}
	}
}

// collect fetches result pages, chaining next-page tokens until the row cap
// is reached or no token remains.  The service returns the column header as
// the first row of the first page; it is skipped.
func (e *Executor) collect(ctx context.Context, h Handle, maxRows int) (*Result, error) {
	res := &Result{Rows: make([][]string, 0, maxRows)}
	token := ""
	first := true
	for {
		var page Page
		err := network.WithRetry(ctx, nil, statusAttempts, func() error {
			var err error
			page, err = e.q.FetchPage(ctx, h, token, pageSize)
			return err
		})
		if err != nil {
			if errors.Is(err, network.ErrRetryFailed) {
				return nil, classify.Wrap(classify.KindUnavailable, "result retrieval failed", err)
			}
			return nil, e.loopErr(h, err)
		}

		rows := page.Rows
		if first {
			res.Columns = page.Columns
			if len(rows) > 0 && isHeaderRow(rows[0], page.Columns) {
				rows = rows[1:]
			}
			first = false
		}
		for _, row := range rows {
			if len(res.Rows) >= maxRows {
				res.Truncated = true
				return res, nil
			}
			res.Rows = append(res.Rows, row)
		}
		if page.NextToken == "" {
			return res, nil
		}
		token = page.NextToken
	}
}

// loopErr converts a context error surfaced inside the loop into the
// taxonomy; classified errors pass through unchanged.
func (e *Executor) loopErr(h Handle, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return e.timeoutErr(h)
	case errors.Is(err, context.Canceled):
		return classify.Wrap(classify.KindCancelled, "query execution cancelled", err)
	}
	return err
}

// timeoutErr is the client-side TIMED_OUT declaration.  The remote query is
// left running; the handle is quoted so an operator can inspect or cancel it.
func (e *Executor) timeoutErr(h Handle) error {
	return classify.Errorf(classify.KindTimeout,
		"query did not complete within the deadline; it is still running remotely as execution %s", h)
}

// isHeaderRow reports whether row repeats the column names, which is how the
// service renders the header row of a SELECT result.
func isHeaderRow(row []string, cols []Column) bool {
	if len(cols) == 0 || len(row) != len(cols) {
		return false
	}
	for i := range row {
		if row[i] != cols[i].Name {
			return false
		}
	}
	return true
}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
