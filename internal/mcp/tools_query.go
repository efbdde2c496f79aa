package mcp

// In this file: query tool definitions and handlers.

import (
	"context"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpsrv "github.com/mark3labs/mcp-go/server"

	"github.com/lakebridge/lakebridge/internal/athena"
	"github.com/lakebridge/lakebridge/internal/classify"
)

// errNoQueryBackend is returned by query tool handlers when the query
// service is not configured.
var errNoQueryBackend = classify.New(classify.KindConfiguration,
	"the query service is not configured; check the AWS profile, region and ATHENA_* settings")

// ─── query_execute ────────────────────────────────────────────────────────────

func (s *Server) toolQueryExecute() mcpsrv.ServerTool {
	tool := mcplib.NewTool("query_execute",
		mcplib.WithDescription(`Execute a SQL query against the data lake and return the result rows.

The query should be valid Presto/Trino SQL.  Execution is asynchronous on
the remote service: the tool submits the statement, waits for completion and
fetches the results, so long-running queries take correspondingly long.

Tips:
- Always include appropriate WHERE clauses to limit data scanned
- Use LIMIT to restrict result set size`),
		mcplib.WithString("statement",
			mcplib.Description("The SQL statement to execute."),
			mcplib.Required(),
		),
		mcplib.WithString("catalog",
			mcplib.Description("Catalog (database) to run the query in. Defaults to the configured catalog."),
		),
		mcplib.WithString("workgroup",
			mcplib.Description("Workgroup to run the query in. Defaults to the configured workgroup."),
		),
		mcplib.WithNumber("max_rows",
			mcplib.Description("Maximum rows to return; rows beyond the cap are discarded and the result is flagged as truncated."),
		),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleQueryExecute}
}

// queryResult is the JSON payload of a successful query_execute call.
type queryResult struct {
	Columns   []athena.Column `json:"columns"`
	Rows      [][]string      `json:"rows"`
	RowCount  int             `json:"row_count"`
	Truncated bool            `json:"truncated"`
}

func (s *Server) handleQueryExecute(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.exec == nil {
		return resultErr(errNoQueryBackend), nil
	}

	statement, ok := stringArg(req, "statement")
	if !ok || statement == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "query_execute: statement is required")), nil
	}
	catalog, _ := stringArg(req, "catalog")
	workgroup, _ := stringArg(req, "workgroup")
	maxRows := intArg(req, "max_rows", s.res.Config().MaxRows)

	cctx, err := s.res.ResolveCatalog(catalog, workgroup)
	if err != nil {
		return resultErr(err), nil
	}

	s.logger.InfoContext(ctx, "mcp: query_execute", "catalog", cctx.Catalog, "workgroup", cctx.Workgroup, "max_rows", maxRows)

	res, err := s.exec.Execute(ctx, athena.Request{
		Statement:      statement,
		DataCatalog:    cctx.DataCatalog,
		Catalog:        cctx.Catalog,
		Workgroup:      cctx.Workgroup,
		OutputLocation: cctx.OutputLocation,
	}, athena.Options{
		MaxRows:  maxRows,
		Deadline: s.res.Config().QueryDeadline,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "mcp: query_execute failed", "error", err, "cause", errors.Unwrap(err))
		return resultErr(err), nil
	}

	result, err := resultJSON(queryResult{
		Columns:   res.Columns,
		Rows:      res.Rows,
		RowCount:  len(res.Rows),
		Truncated: res.Truncated,
	})
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "query_execute: serialise", err)), nil
	}
	return result, nil
}

// ─── query_list_catalogs ──────────────────────────────────────────────────────

func (s *Server) toolQueryListCatalogs() mcpsrv.ServerTool {
	tool := mcplib.NewTool("query_list_catalogs",
		mcplib.WithDescription("List all catalogs (databases) available in the data lake."),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleQueryListCatalogs}
}

func (s *Server) handleQueryListCatalogs(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.cat == nil {
		return resultErr(errNoQueryBackend), nil
	}

	names, err := s.cat.ListDatabases(ctx, s.res.Config().DataCatalog)
	if err != nil {
		return resultErr(err), nil
	}
	result, err := resultJSON(names)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "query_list_catalogs: serialise", err)), nil
	}
	return result, nil
}

// ─── query_list_tables ────────────────────────────────────────────────────────

func (s *Server) toolQueryListTables() mcpsrv.ServerTool {
	tool := mcplib.NewTool("query_list_tables",
		mcplib.WithDescription("List all tables in a catalog (database)."),
		mcplib.WithString("catalog",
			mcplib.Description("The catalog (database) to list tables from. Defaults to the configured catalog."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleQueryListTables}
}

func (s *Server) handleQueryListTables(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.cat == nil {
		return resultErr(errNoQueryBackend), nil
	}

	catalog, _ := stringArg(req, "catalog")
	catalog, err := s.res.CatalogName(catalog)
	if err != nil {
		return resultErr(err), nil
	}

	names, err := s.cat.ListTables(ctx, s.res.Config().DataCatalog, catalog)
	if err != nil {
		return resultErr(err), nil
	}
	result, err := resultJSON(names)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "query_list_tables: serialise", err)), nil
	}
	return result, nil
}

// ─── query_describe_table ─────────────────────────────────────────────────────

func (s *Server) toolQueryDescribeTable() mcpsrv.ServerTool {
	tool := mcplib.NewTool("query_describe_table",
		mcplib.WithDescription("Get the schema of a table: column names, types, comments, and partition keys."),
		mcplib.WithString("table",
			mcplib.Description("The table name to describe."),
			mcplib.Required(),
		),
		mcplib.WithString("catalog",
			mcplib.Description("The catalog (database) containing the table. Defaults to the configured catalog."),
		),
		mcplib.WithReadOnlyHintAnnotation(true),
		mcplib.WithIdempotentHintAnnotation(true),
	)
	return mcpsrv.ServerTool{Tool: tool, Handler: s.handleQueryDescribeTable}
}

func (s *Server) handleQueryDescribeTable(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	if s.cat == nil {
		return resultErr(errNoQueryBackend), nil
	}

	table, ok := stringArg(req, "table")
	if !ok || table == "" {
		return resultErr(classify.New(classify.KindInvalidArgument, "query_describe_table: table is required")), nil
	}
	catalog, _ := stringArg(req, "catalog")
	catalog, err := s.res.CatalogName(catalog)
	if err != nil {
		return resultErr(err), nil
	}

	schema, err := s.cat.DescribeTable(ctx, s.res.Config().DataCatalog, catalog, table)
	if err != nil {
		return resultErr(err), nil
	}
	result, err := resultJSON(schema)
	if err != nil {
		return resultErr(classify.Wrap(classify.KindUnknown, "query_describe_table: serialise", err)), nil
	}
	return result, nil
}
