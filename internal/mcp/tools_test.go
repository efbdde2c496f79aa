package mcp

import (
	"context"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakebridge/lakebridge/internal/athena"
	"github.com/lakebridge/lakebridge/internal/chat"
	"github.com/lakebridge/lakebridge/internal/classify"
	"github.com/lakebridge/lakebridge/internal/resolver"
)

// fakeExec records the request it received and returns a scripted result.
type fakeExec struct {
	gotReq athena.Request
	gotOpt athena.Options
	res    *athena.Result
	err    error
	calls  int
}

func (f *fakeExec) Execute(_ context.Context, req athena.Request, opt athena.Options) (*athena.Result, error) {
	f.calls++
	f.gotReq = req
	f.gotOpt = opt
	return f.res, f.err
}

type fakeCatalog struct {
	databases []string
	tables    []string
	schema    *athena.TableSchema
	err       error
	calls     int
}

func (f *fakeCatalog) ListDatabases(context.Context, string) ([]string, error) {
	f.calls++
	return f.databases, f.err
}

func (f *fakeCatalog) ListTables(context.Context, string, string) ([]string, error) {
	f.calls++
	return f.tables, f.err
}

func (f *fakeCatalog) DescribeTable(context.Context, string, string, string) (*athena.TableSchema, error) {
	f.calls++
	return f.schema, f.err
}

type fakeMessenger struct {
	channels []chat.ChannelSummary
	messages []chat.Message
	delivery chat.Delivery
	err      error
	calls    int
}

func (f *fakeMessenger) ListChannels(context.Context, bool, int) ([]chat.ChannelSummary, error) {
	f.calls++
	return f.channels, f.err
}

func (f *fakeMessenger) ReadMessages(context.Context, string, int) ([]chat.Message, error) {
	f.calls++
	return f.messages, f.err
}

func (f *fakeMessenger) SendMessage(context.Context, string, string, string) (chat.Delivery, error) {
	f.calls++
	return f.delivery, f.err
}

func (f *fakeMessenger) DeleteMessage(context.Context, string, string) (chat.Delivery, error) {
	f.calls++
	return f.delivery, f.err
}

var testCfg = resolver.Config{
	DataCatalog:    "AwsDataCatalog",
	DefaultCatalog: "silver",
	Workgroup:      "primary",
	OutputLocation: "s3://results/queries",
	MaxRows:        100,
}

// toolReq builds a CallToolRequest with the given argument map.
func toolReq(args map[string]any) mcplib.CallToolRequest {
	req := mcplib.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// firstText returns the text of the first TextContent in the result.
func firstText(t *testing.T, r *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, r.Content, "result has no content")
	txt, ok := r.Content[0].(mcplib.TextContent)
	require.True(t, ok, "first content item is not TextContent")
	return txt.Text
}

func TestHandleQueryExecute(t *testing.T) {
	t.Run("success payload", func(t *testing.T) {
		fe := &fakeExec{res: &athena.Result{
			Columns:   []athena.Column{{Name: "id", Type: "varchar"}},
			Rows:      [][]string{{"a"}, {"b"}},
			Truncated: true,
		}}
		srv := New(resolver.New(testCfg), WithExecutor(fe))

		res, err := srv.handleQueryExecute(t.Context(), toolReq(map[string]any{
			"statement": "SELECT id FROM events",
			"max_rows":  float64(2),
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		assert.Equal(t, "silver", fe.gotReq.Catalog)
		assert.Equal(t, "primary", fe.gotReq.Workgroup)
		assert.Equal(t, "s3://results/queries", fe.gotReq.OutputLocation)
		assert.Equal(t, 2, fe.gotOpt.MaxRows)

		text := firstText(t, res)
		assert.Contains(t, text, `"truncated":true`)
		assert.Contains(t, text, `"row_count":2`)
	})

	t.Run("missing statement makes no remote call", func(t *testing.T) {
		fe := &fakeExec{}
		srv := New(resolver.New(testCfg), WithExecutor(fe))

		res, err := srv.handleQueryExecute(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "invalid_argument")
		assert.Zero(t, fe.calls)
	})

	t.Run("classified error carries stable kind", func(t *testing.T) {
		fe := &fakeExec{err: classify.New(classify.KindTimeout, "query did not complete within the deadline")}
		srv := New(resolver.New(testCfg), WithExecutor(fe))

		res, err := srv.handleQueryExecute(t.Context(), toolReq(map[string]any{"statement": "SELECT 1"}))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "timeout:")
	})

	t.Run("unresolvable catalog fails before execution", func(t *testing.T) {
		fe := &fakeExec{}
		cfg := testCfg
		cfg.DefaultCatalog = ""
		srv := New(resolver.New(cfg), WithExecutor(fe))

		res, err := srv.handleQueryExecute(t.Context(), toolReq(map[string]any{"statement": "SELECT 1"}))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "configuration")
		assert.Zero(t, fe.calls)
	})

	t.Run("no backend", func(t *testing.T) {
		srv := New(resolver.New(testCfg))
		res, err := srv.handleQueryExecute(t.Context(), toolReq(map[string]any{"statement": "SELECT 1"}))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "configuration")
	})
}

func TestHandleQueryListCatalogs(t *testing.T) {
	fc := &fakeCatalog{databases: []string{"bronze", "silver"}}
	srv := New(resolver.New(testCfg), WithCatalog(fc))

	res, err := srv.handleQueryListCatalogs(t.Context(), toolReq(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Contains(t, firstText(t, res), "bronze")
}

func TestHandleQueryListTables(t *testing.T) {
	t.Run("default catalog", func(t *testing.T) {
		fc := &fakeCatalog{tables: []string{"events"}}
		srv := New(resolver.New(testCfg), WithCatalog(fc))

		res, err := srv.handleQueryListTables(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "events")
	})

	t.Run("no catalog configured", func(t *testing.T) {
		fc := &fakeCatalog{}
		cfg := testCfg
		cfg.DefaultCatalog = ""
		srv := New(resolver.New(cfg), WithCatalog(fc))

		res, err := srv.handleQueryListTables(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Zero(t, fc.calls)
	})
}

func TestHandleQueryDescribeTable(t *testing.T) {
	t.Run("schema returned", func(t *testing.T) {
		fc := &fakeCatalog{schema: &athena.TableSchema{
			Columns:       []athena.ColumnMeta{{Name: "id", Type: "varchar"}},
			PartitionKeys: []athena.ColumnMeta{{Name: "dt", Type: "date"}},
		}}
		srv := New(resolver.New(testCfg), WithCatalog(fc))

		res, err := srv.handleQueryDescribeTable(t.Context(), toolReq(map[string]any{"table": "events"}))
		require.NoError(t, err)
		require.False(t, res.IsError)
		text := firstText(t, res)
		assert.Contains(t, text, "partition_keys")
	})

	t.Run("missing table argument", func(t *testing.T) {
		fc := &fakeCatalog{}
		srv := New(resolver.New(testCfg), WithCatalog(fc))

		res, err := srv.handleQueryDescribeTable(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "invalid_argument")
		assert.Zero(t, fc.calls)
	})
}

func TestHandleMessagesListChannels(t *testing.T) {
	t.Run("channels as JSON", func(t *testing.T) {
		fm := &fakeMessenger{channels: []chat.ChannelSummary{{ID: "C1", Name: "general"}}}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesListChannels(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "general")
	})

	t.Run("empty listing", func(t *testing.T) {
		fm := &fakeMessenger{}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesListChannels(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "No accessible channels")
	})
}

func TestHandleMessagesRead(t *testing.T) {
	t.Run("messages as JSON", func(t *testing.T) {
		fm := &fakeMessenger{messages: []chat.Message{
			{Author: "Alice A", Text: "hello", TS: "1700000000.000100"},
		}}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesRead(t.Context(), toolReq(map[string]any{"channel": "general"}))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), "Alice A")
	})

	t.Run("missing channel makes no remote call", func(t *testing.T) {
		fm := &fakeMessenger{}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesRead(t.Context(), toolReq(nil))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "invalid_argument")
		assert.Zero(t, fm.calls)
	})

	t.Run("permission denial propagates kind", func(t *testing.T) {
		fm := &fakeMessenger{err: classify.New(classify.KindPermissionDenied, "channel \"random\" is not in the allowed channels list")}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesRead(t.Context(), toolReq(map[string]any{"channel": "random"}))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Contains(t, firstText(t, res), "permission_denied:")
	})
}

func TestHandleMessagesSend(t *testing.T) {
	t.Run("delivered", func(t *testing.T) {
		fm := &fakeMessenger{delivery: chat.Delivery{Delivered: true, Channel: "C1", Timestamp: "1700000000.000100"}}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesSend(t.Context(), toolReq(map[string]any{
			"channel": "general",
			"text":    "hello",
		}))
		require.NoError(t, err)
		require.False(t, res.IsError)
		assert.Contains(t, firstText(t, res), `"delivered":true`)
	})

	t.Run("missing text makes no remote call", func(t *testing.T) {
		fm := &fakeMessenger{}
		srv := New(resolver.New(testCfg), WithMessenger(fm))

		res, err := srv.handleMessagesSend(t.Context(), toolReq(map[string]any{"channel": "general"}))
		require.NoError(t, err)
		require.True(t, res.IsError)
		assert.Zero(t, fm.calls)
	})
}

func TestHandleMessagesDelete(t *testing.T) {
	fm := &fakeMessenger{delivery: chat.Delivery{Delivered: true}}
	srv := New(resolver.New(testCfg), WithMessenger(fm))

	res, err := srv.handleMessagesDelete(t.Context(), toolReq(map[string]any{
		"channel": "general",
		"ts":      "1700000000.000100",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, 1, fm.calls)

	res, err = srv.handleMessagesDelete(t.Context(), toolReq(map[string]any{"channel": "general"}))
	require.NoError(t, err)
	require.True(t, res.IsError)
	assert.Equal(t, 1, fm.calls, "missing ts must not reach the backend")
}
