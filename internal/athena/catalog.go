package athena

// In this file: catalog metadata lookups (databases, tables, table schemas).
// These are single synchronous calls; transient failures are retried once.

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"

	"github.com/lakebridge/lakebridge/internal/network"
)

// readAttempts allows one retry of a transient failure on read-only
// metadata calls.
const readAttempts = 2

// ColumnMeta describes one column of a table schema.
type ColumnMeta struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Comment string `json:"comment,omitempty"`
}

// TableSchema is the schema of one table.
type TableSchema struct {
	Columns       []ColumnMeta `json:"columns"`
	PartitionKeys []ColumnMeta `json:"partition_keys,omitempty"`
}

// ListDatabases returns the names of all databases in the data catalog, in
// the order the service lists them.
func (c *Client) ListDatabases(ctx context.Context, dataCatalog string) ([]string, error) {
	var names []string
	err := network.WithRetry(ctx, nil, readAttempts, func() error {
		names = names[:0]
		var token *string
		for {
			if err := c.lim.Wait(ctx); err != nil {
				return classifyTransport("list databases", err)
			}
			out, err := c.api.ListDatabases(ctx, &athena.ListDatabasesInput{
				CatalogName: aws.String(dataCatalog),
				NextToken:   token,
			})
			if err != nil {
				return classifyTransport("list databases", err)
			}
			for _, db := range out.DatabaseList {
				names = append(names, aws.ToString(db.Name))
			}
			if out.NextToken == nil {
				return nil
			}
			token = out.NextToken
		}
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ListTables returns the names of all tables in the given database.
func (c *Client) ListTables(ctx context.Context, dataCatalog, database string) ([]string, error) {
	var names []string
	err := network.WithRetry(ctx, nil, readAttempts, func() error {
		names = names[:0]
		var token *string
		for {
			if err := c.lim.Wait(ctx); err != nil {
				return classifyTransport("list tables", err)
			}
			out, err := c.api.ListTableMetadata(ctx, &athena.ListTableMetadataInput{
				CatalogName:  aws.String(dataCatalog),
				DatabaseName: aws.String(database),
				NextToken:    token,
			})
			if err != nil {
				return classifyTransport("list tables", err)
			}
			for _, tm := range out.TableMetadataList {
				names = append(names, aws.ToString(tm.Name))
			}
			if out.NextToken == nil {
				return nil
			}
			token = out.NextToken
		}
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// DescribeTable returns the schema of the given table, including partition
// keys.
func (c *Client) DescribeTable(ctx context.Context, dataCatalog, database, table string) (*TableSchema, error) {
	var schema *TableSchema
	err := network.WithRetry(ctx, nil, readAttempts, func() error {
		if err := c.lim.Wait(ctx); err != nil {
			return classifyTransport("describe table", err)
		}
		out, err := c.api.GetTableMetadata(ctx, &athena.GetTableMetadataInput{
			CatalogName:  aws.String(dataCatalog),
			DatabaseName: aws.String(database),
			TableName:    aws.String(table),
		})
		if err != nil {
			return classifyTransport("describe table", err)
		}
		schema = &TableSchema{}
		if out.TableMetadata != nil {
			for _, col := range out.TableMetadata.Columns {
				schema.Columns = append(schema.Columns, ColumnMeta{
					Name:    aws.ToString(col.Name),
					Type:    aws.ToString(col.Type),
					Comment: aws.ToString(col.Comment),
				})
			}
			for _, col := range out.TableMetadata.PartitionKeys {
				schema.PartitionKeys = append(schema.PartitionKeys, ColumnMeta{
					Name:    aws.ToString(col.Name),
					Type:    aws.ToString(col.Type),
					Comment: aws.ToString(col.Comment),
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return schema, nil
}
