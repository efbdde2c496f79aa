package athena

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakebridge/lakebridge/internal/classify"
)

// fakeAPI implements the api interface with scripted responses.
type fakeAPI struct {
	startOut *athena.StartQueryExecutionOutput
	startErr error
	startIn  *athena.StartQueryExecutionInput

	execOut *athena.GetQueryExecutionOutput
	execErr error

	resultsOut *athena.GetQueryResultsOutput
	resultsErr error

	dbOut  *athena.ListDatabasesOutput
	dbErr  error
	tblOut *athena.ListTableMetadataOutput
	tblErr error
	mdOut  *athena.GetTableMetadataOutput
	mdErr  error
}

func (f *fakeAPI) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.startIn = in
	return f.startOut, f.startErr
}

func (f *fakeAPI) GetQueryExecution(_ context.Context, _ *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	return f.execOut, f.execErr
}

func (f *fakeAPI) GetQueryResults(_ context.Context, _ *athena.GetQueryResultsInput, _ ...func(*athena.Options)) (*athena.GetQueryResultsOutput, error) {
	return f.resultsOut, f.resultsErr
}

func (f *fakeAPI) ListDatabases(_ context.Context, _ *athena.ListDatabasesInput, _ ...func(*athena.Options)) (*athena.ListDatabasesOutput, error) {
	return f.dbOut, f.dbErr
}

func (f *fakeAPI) ListTableMetadata(_ context.Context, _ *athena.ListTableMetadataInput, _ ...func(*athena.Options)) (*athena.ListTableMetadataOutput, error) {
	return f.tblOut, f.tblErr
}

func (f *fakeAPI) GetTableMetadata(_ context.Context, _ *athena.GetTableMetadataInput, _ ...func(*athena.Options)) (*athena.GetTableMetadataOutput, error) {
	return f.mdOut, f.mdErr
}

func TestSubmitAppendsUniqueResultPrefix(t *testing.T) {
	fa := &fakeAPI{startOut: &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String("qe-42")}}
	c := newClientAPI(fa)

	h, err := c.Submit(context.Background(), Request{
		Statement:      "SELECT 1",
		DataCatalog:    "AwsDataCatalog",
		Catalog:        "silver",
		Workgroup:      "primary",
		OutputLocation: "s3://results/queries/",
	})
	require.NoError(t, err)
	assert.Equal(t, Handle("qe-42"), h)

	require.NotNil(t, fa.startIn)
	loc := aws.ToString(fa.startIn.ResultConfiguration.OutputLocation)
	assert.Regexp(t, `^s3://results/queries/[0-9a-f-]{36}$`, loc)
	assert.Equal(t, "silver", aws.ToString(fa.startIn.QueryExecutionContext.Database))
	assert.Equal(t, "primary", aws.ToString(fa.startIn.WorkGroup))
}

func TestStatusMapsStates(t *testing.T) {
	tests := []struct {
		in   types.QueryExecutionState
		want State
	}{
		{types.QueryExecutionStateQueued, StateQueued},
		{types.QueryExecutionStateRunning, StateRunning},
		{types.QueryExecutionStateSucceeded, StateSucceeded},
		{types.QueryExecutionStateFailed, StateFailed},
		{types.QueryExecutionStateCancelled, StateCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			fa := &fakeAPI{execOut: &athena.GetQueryExecutionOutput{
				QueryExecution: &types.QueryExecution{
					Status: &types.QueryExecutionStatus{State: tt.in},
				},
			}}
			st, err := newClientAPI(fa).Status(context.Background(), "qe-42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
		})
	}
}

func TestFetchPageConvertsResultSet(t *testing.T) {
	fa := &fakeAPI{resultsOut: &athena.GetQueryResultsOutput{
		NextToken: aws.String("t1"),
		ResultSet: &types.ResultSet{
			ResultSetMetadata: &types.ResultSetMetadata{
				ColumnInfo: []types.ColumnInfo{
					{Name: aws.String("id"), Type: aws.String("varchar")},
					{Name: aws.String("n"), Type: aws.String("bigint")},
				},
			},
			Rows: []types.Row{
				{Data: []types.Datum{{VarCharValue: aws.String("id")}, {VarCharValue: aws.String("n")}}},
				{Data: []types.Datum{{VarCharValue: aws.String("a")}, {VarCharValue: nil}}},
			},
		},
	}}
	p, err := newClientAPI(fa).FetchPage(context.Background(), "qe-42", "", 1000)
	require.NoError(t, err)
	assert.Equal(t, []Column{{Name: "id", Type: "varchar"}, {Name: "n", Type: "bigint"}}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, []string{"a", ""}, p.Rows[1], "NULL values render as empty strings")
	assert.Equal(t, "t1", p.NextToken)
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind classify.Kind
	}{
		{"cancelled context", context.Canceled, classify.KindCancelled},
		{"deadline", context.DeadlineExceeded, classify.KindTimeout},
		{"invalid request", &types.InvalidRequestException{Message: aws.String("bad workgroup")}, classify.KindInvalidArgument},
		{"too many requests", &types.TooManyRequestsException{}, classify.KindExhausted},
		{"internal", &types.InternalServerException{}, classify.KindUnavailable},
		{"metadata", &types.MetadataException{Message: aws.String("db missing")}, classify.KindNotFound},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "nope"}, classify.KindPermissionDenied},
		{"expired token", &smithy.GenericAPIError{Code: "ExpiredTokenException", Message: "expired"}, classify.KindUnauthenticated},
		{"throttling", &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}, classify.KindExhausted},
		{"unknown api error", &smithy.GenericAPIError{Code: "Weird", Message: "?"}, classify.KindUnknown},
		{"plain transport error", errors.New("dial tcp: connection refused"), classify.KindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyTransport("op", tt.err)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, classify.KindOf(err))
			assert.ErrorIs(t, err, tt.err, "cause must be preserved for logging")
		})
	}
	assert.NoError(t, classifyTransport("op", nil))
}

func TestClassifyTransportHidesRawError(t *testing.T) {
	raw := errors.New("dial tcp 10.0.0.1:443: i/o timeout (verbose provider detail)")
	err := classifyTransport("submit query", raw)
	assert.NotContains(t, err.Error(), "10.0.0.1")
}

func TestIsHeaderRow(t *testing.T) {
	cols := []Column{{Name: "a"}, {Name: "b"}}
	assert.True(t, isHeaderRow([]string{"a", "b"}, cols))
	assert.False(t, isHeaderRow([]string{"a", "c"}, cols))
	assert.False(t, isHeaderRow([]string{"a"}, cols))
	assert.False(t, isHeaderRow([]string{"a", "b"}, nil))
}
