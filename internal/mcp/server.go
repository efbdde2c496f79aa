// Package mcp exposes the query and messaging operations as MCP tools.  It
// is the stable request/response boundary: tool arguments are validated
// here before any handler runs, and every handler outcome — success payload
// or classified error — is normalised into the tool-call result envelope.
package mcp

// In this file: MCP server construction, transport management and argument
// helpers.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/lakebridge/lakebridge/internal/athena"
	"github.com/lakebridge/lakebridge/internal/chat"
	"github.com/lakebridge/lakebridge/internal/resolver"
)

const (
	serverName    = "lakebridge"
	serverVersion = "1.0.0"
)

// QueryExecutor runs one query to completion.  Implemented by
// athena.Executor.
type QueryExecutor interface {
	Execute(ctx context.Context, req athena.Request, opt athena.Options) (*athena.Result, error)
}

// Catalog performs the query service's metadata lookups.  Implemented by
// athena.Client.
type Catalog interface {
	ListDatabases(ctx context.Context, dataCatalog string) ([]string, error)
	ListTables(ctx context.Context, dataCatalog, database string) ([]string, error)
	DescribeTable(ctx context.Context, dataCatalog, database, table string) (*athena.TableSchema, error)
}

// Messenger performs the messaging operations.  Implemented by
// chat.Service.
type Messenger interface {
	ListChannels(ctx context.Context, includePrivate bool, limit int) ([]chat.ChannelSummary, error)
	ReadMessages(ctx context.Context, ref string, limit int) ([]chat.Message, error)
	SendMessage(ctx context.Context, ref, text, threadTS string) (chat.Delivery, error)
	DeleteMessage(ctx context.Context, ref, ts string) (chat.Delivery, error)
}

// Server wraps an MCP server and the two backing services.  A backend left
// unset (nil) keeps its tools registered but they report a configuration
// error when called, so a partially configured server still starts.
type Server struct {
	mcp    *mcpsrv.MCPServer
	exec   QueryExecutor
	cat    Catalog
	msg    Messenger
	res    *resolver.Resolver
	logger *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.  Defaults to slog.Default().
func WithLogger(lg *slog.Logger) Option {
	return func(s *Server) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// WithExecutor sets the query executor backend.
func WithExecutor(e QueryExecutor) Option {
	return func(s *Server) { s.exec = e }
}

// WithCatalog sets the catalog metadata backend.
func WithCatalog(c Catalog) Option {
	return func(s *Server) { s.cat = c }
}

// WithMessenger sets the messaging backend.
func WithMessenger(m Messenger) Option {
	return func(s *Server) { s.msg = m }
}

// New creates the MCP server.  res must not be nil; backends are optional.
// The server is populated with all tools but does not start listening until
// one of the Serve* methods is called.
func New(res *resolver.Resolver, opts ...Option) *Server {
	s := &Server{
		res:    res,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mcpServer := mcpsrv.NewMCPServer(
		serverName,
		serverVersion,
		mcpsrv.WithInstructions(instructions(res)),
	)
	for _, t := range s.tools() {
		mcpServer.AddTool(t.Tool, t.Handler)
	}
	s.mcp = mcpServer
	return s
}

// instructions describes the connected backends to the agent.
func instructions(res *resolver.Resolver) string {
	var b strings.Builder
	b.WriteString(`You are connected to a lakebridge MCP server.

Available tools let you:
- Execute SQL (Presto/Trino dialect) against the data lake and fetch the results
- Browse the data catalog: list databases, list tables, describe table schemas
- List Slack channels, read recent channel messages, send and delete messages

Queries run asynchronously on the remote service; the query_execute tool
waits for completion and returns the rows, so expect it to take longer than
the metadata tools.  Always add WHERE and LIMIT clauses to keep the scanned
data small.
`)
	cfg := res.Config()
	if cfg.DefaultCatalog != "" {
		fmt.Fprintf(&b, "\nThe default catalog (database) is %q.\n", cfg.DefaultCatalog)
	}
	if res.Restricted() {
		b.WriteString("\nMessaging is restricted to an allowlisted set of channels; other channels are not accessible.\n")
	}
	return b.String()
}

// ServeStdio runs the MCP server over stdin/stdout until ctx is cancelled.
// This is the standard transport used by local agent integrations.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := mcpsrv.NewStdioServer(s.mcp)
	s.logger.InfoContext(ctx, "mcp server listening on stdio")
	if err := srv.Listen(ctx, os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("mcp stdio server error: %w", err)
	}
	return nil
}

// ServeHTTP runs the MCP server as a Streamable HTTP server on addr until
// ctx is cancelled.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	httpSrv := &http.Server{Addr: addr}
	streamSrv := mcpsrv.NewStreamableHTTPServer(s.mcp,
		mcpsrv.WithStreamableHTTPServer(httpSrv),
	)

	s.logger.InfoContext(ctx, "mcp server listening on http", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := streamSrv.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("mcp http server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.InfoContext(ctx, "mcp server shutting down")
		if err := streamSrv.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("mcp http server shutdown error: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// tools returns all MCP tools that this server exposes.
func (s *Server) tools() []mcpsrv.ServerTool {
	return []mcpsrv.ServerTool{
		s.toolQueryExecute(),
		s.toolQueryListCatalogs(),
		s.toolQueryListTables(),
		s.toolQueryDescribeTable(),
		s.toolMessagesListChannels(),
		s.toolMessagesRead(),
		s.toolMessagesSend(),
		s.toolMessagesDelete(),
	}
}

// resultText wraps text in a successful CallToolResult.
func resultText(text string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(text)
}

// resultErr wraps an error in a CallToolResult with IsError=true.  For
// classified errors the rendered text starts with the stable kind string.
func resultErr(err error) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{mcplib.NewTextContent(err.Error())},
		IsError: true,
	}
}

// resultJSON serialises v to JSON and returns a CallToolResult.
func resultJSON(v any) (*mcplib.CallToolResult, error) {
	return mcplib.NewToolResultJSON(v)
}

// stringArg extracts a named string argument from a tool call request.
// Returns ("", false) if the argument is absent or not a string.
func stringArg(req mcplib.CallToolRequest, name string) (string, bool) {
	args := req.GetArguments()
	if args == nil {
		return "", false
	}
	v, ok := args[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// intArg extracts a named int argument from a tool call request.  The MCP
// protocol serialises numbers as float64, so we convert accordingly.
func intArg(req mcplib.CallToolRequest, name string, defaultVal int) int {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return defaultVal
}

// boolArg extracts a named bool argument from a tool call request.
func boolArg(req mcplib.CallToolRequest, name string, defaultVal bool) bool {
	args := req.GetArguments()
	if args == nil {
		return defaultVal
	}
	v, ok := args[name]
	if !ok {
		return defaultVal
	}
	b, ok := v.(bool)
	if !ok {
		return defaultVal
	}
	return b
}
