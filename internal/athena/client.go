package athena

// In this file: the Athena SDK adapter and transport-level error
// classification.

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/lakebridge/lakebridge/internal/classify"
)

// api is the subset of the Athena SDK client used by this package.
type api interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *athena.GetQueryResultsInput, optFns ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error)
	ListDatabases(ctx context.Context, params *athena.ListDatabasesInput, optFns ...func(*athena.Options)) (*athena.ListDatabasesOutput, error)
	ListTableMetadata(ctx context.Context, params *athena.ListTableMetadataInput, optFns ...func(*athena.Options)) (*athena.ListTableMetadataOutput, error)
	GetTableMetadata(ctx context.Context, params *athena.GetTableMetadataInput, optFns ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error)
}

var _ Querier = (*Client)(nil)

// Client implements Querier over the Athena SDK.  It paces all calls with a
// rate limiter to stay clear of the Athena API throttling limits.
type Client struct {
	api api
	lim *rate.Limiter
}

// defaultAPIRate is a conservative pace for the Athena control-plane APIs.
const defaultAPIRate = rate.Limit(5)

// NewClient creates a Client from the given AWS configuration.
func NewClient(cfg aws.Config) *Client {
	return &Client{
		api: athena.NewFromConfig(cfg),
		lim: rate.NewLimiter(defaultAPIRate, 1),
	}
}

// newClientAPI wraps a raw api; used by tests.
func newClientAPI(a api) *Client {
	return &Client{api: a, lim: rate.NewLimiter(rate.Inf, 1)}
}

// Submit starts a query execution and returns its handle.  The result
// location gets a unique suffix so concurrent queries never share an output
// prefix.
func (c *Client) Submit(ctx context.Context, req Request) (Handle, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return "", classifyTransport("submit query", err)
	}
	out, err := c.api.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(req.Statement),
		WorkGroup:   aws.String(req.Workgroup),
		QueryExecutionContext: &types.QueryExecutionContext{
			Catalog:  aws.String(req.DataCatalog),
			Database: aws.String(req.Catalog),
		},
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(strings.TrimSuffix(req.OutputLocation, "/") + "/" + uuid.NewString()),
		},
	})
	if err != nil {
		return "", classifyTransport("submit query", err)
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", classify.New(classify.KindUnknown, "service returned an empty query execution id")
	}
	return Handle(id), nil
}

// Status returns the current execution state of the query.
func (c *Client) Status(ctx context.Context, h Handle) (Status, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return Status{}, classifyTransport("get query status", err)
	}
	out, err := c.api.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
		QueryExecutionId: aws.String(string(h)),
	})
	if err != nil {
		return Status{}, classifyTransport("get query status", err)
	}
	if out.QueryExecution == nil || out.QueryExecution.Status == nil {
		return Status{}, classify.New(classify.KindUnknown, "service returned a status response without a status")
	}
	st := out.QueryExecution.Status
	return Status{
		State:  mapState(st.State),
		Reason: aws.ToString(st.StateChangeReason),
	}, nil
}

// FetchPage retrieves one page of results.  nextToken is empty for the first
// page.
func (c *Client) FetchPage(ctx context.Context, h Handle, nextToken string, maxResults int32) (Page, error) {
	if err := c.lim.Wait(ctx); err != nil {
		return Page{}, classifyTransport("fetch results", err)
	}
	in := &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(string(h)),
		MaxResults:       aws.Int32(maxResults),
	}
	if nextToken != "" {
		in.NextToken = aws.String(nextToken)
	}
	out, err := c.api.GetQueryResults(ctx, in)
	if err != nil {
		return Page{}, classifyTransport("fetch results", err)
	}
	if out.ResultSet == nil {
		return Page{}, classify.New(classify.KindUnknown, "service returned a result response without a result set")
	}

	var p Page
	if md := out.ResultSet.ResultSetMetadata; md != nil {
		p.Columns = make([]Column, 0, len(md.ColumnInfo))
		for _, ci := range md.ColumnInfo {
			p.Columns = append(p.Columns, Column{
				Name: aws.ToString(ci.Name),
				Type: aws.ToString(ci.Type),
			})
		}
	}
	p.Rows = make([][]string, 0, len(out.ResultSet.Rows))
	for _, row := range out.ResultSet.Rows {
		r := make([]string, 0, len(row.Data))
		for _, d := range row.Data {
			r = append(r, aws.ToString(d.VarCharValue))
		}
		p.Rows = append(p.Rows, r)
	}
	p.NextToken = aws.ToString(out.NextToken)
	return p, nil
}

// mapState converts the provider state to State.  Unrecognised states map to
// StateQueued so the executor keeps polling instead of fabricating a
// terminal outcome.
func mapState(s types.QueryExecutionState) State {
	switch s {
	case types.QueryExecutionStateQueued:
		return StateQueued
	case types.QueryExecutionStateRunning:
		return StateRunning
	case types.QueryExecutionStateSucceeded:
		return StateSucceeded
	case types.QueryExecutionStateFailed:
		return StateFailed
	case types.QueryExecutionStateCancelled:
		return StateCancelled
	}
	return StateQueued
}

// classifyTransport maps an error from an SDK call to the error taxonomy.
// The raw error is retained as the cause for logging but never rendered in
// the classified message.
func classifyTransport(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return classify.Wrap(classify.KindCancelled, op+": cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return classify.Wrap(classify.KindTimeout, op+": deadline exceeded", err)
	}

	var (
		invalidReq *types.InvalidRequestException
		tooMany    *types.TooManyRequestsException
		internal   *types.InternalServerException
		metadata   *types.MetadataException
		apiErr     smithy.APIError
		netErr     *net.OpError
	)
	switch {
	case errors.As(err, &invalidReq):
		return classify.Wrap(classify.KindInvalidArgument,
			op+": the service rejected the request: "+aws.ToString(invalidReq.Message), err)
	case errors.As(err, &tooMany):
		return classify.Wrap(classify.KindExhausted, op+": request rate exceeded, throttled", err)
	case errors.As(err, &internal):
		return classify.Wrap(classify.KindUnavailable, op+": service reported an internal error", err)
	case errors.As(err, &metadata):
		return classify.Wrap(classify.KindNotFound,
			op+": catalog object not found: "+aws.ToString(metadata.Message), err)
	case errors.As(err, &apiErr):
		return classifyAPIError(op, apiErr, err)
	case errors.As(err, &netErr):
		return classify.Wrap(classify.KindUnavailable, op+": network error", err)
	}
	return classify.Wrap(classify.KindUnavailable, op+": request failed", err)
}

// classifyAPIError maps generic smithy API error codes.  Codes outside the
// known set classify as Unknown rather than Unavailable: an unrecognised
// service rejection is not evidence of a transient condition.
func classifyAPIError(op string, apiErr smithy.APIError, cause error) error {
	code := apiErr.ErrorCode()
	switch code {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation":
		return classify.Wrap(classify.KindPermissionDenied, op+": access denied", cause)
	case "UnrecognizedClientException", "InvalidSignatureException",
		"ExpiredToken", "ExpiredTokenException", "InvalidClientTokenId":
		return classify.Wrap(classify.KindUnauthenticated,
			op+": AWS credentials are missing, invalid or expired", cause)
	case "ThrottlingException", "Throttling", "TooManyRequestsException", "RequestLimitExceeded":
		return classify.Wrap(classify.KindExhausted, op+": request rate exceeded, throttled", cause)
	case "ServiceUnavailable", "ServiceUnavailableException", "InternalFailure", "InternalServerException":
		return classify.Wrap(classify.KindUnavailable, op+": service unavailable", cause)
	case "ResourceNotFoundException", "EntityNotFoundException":
		return classify.Wrap(classify.KindNotFound, op+": resource not found", cause)
	}
	return classify.Wrap(classify.KindUnknown,
		op+": service error "+code+": "+apiErr.ErrorMessage(), cause)
}

// classifyFailure maps the provider's state-change reason of a FAILED query
// to the error taxonomy.  Only throttling-class failures are retryable.
func classifyFailure(reason string) error {
	if reason == "" {
		reason = "query failed without a reason"
	}
	lower := strings.ToLower(reason)
	switch {
	case strings.Contains(lower, "syntax_error") || strings.Contains(lower, "syntax error") ||
		strings.Contains(lower, "mismatched input"):
		return classify.New(classify.KindSyntax, reason)
	case strings.Contains(lower, "access denied") || strings.Contains(lower, "accessdenied") ||
		strings.Contains(lower, "permission") || strings.Contains(lower, "not authorized"):
		return classify.New(classify.KindPermissionDenied, reason)
	case strings.Contains(lower, "does not exist") || strings.Contains(lower, "not_found") ||
		strings.Contains(lower, "not found"):
		return classify.New(classify.KindNotFound, reason)
	case strings.Contains(lower, "exhausted") || strings.Contains(lower, "throttl") ||
		strings.Contains(lower, "limit exceeded"):
		return classify.New(classify.KindExhausted, reason)
	}
	return classify.New(classify.KindUnknown, reason)
}
