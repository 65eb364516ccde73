package clickhouse

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"hermannm.dev/eventanalytics/config"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/eventanalytics/db/sqlgen"
	"hermannm.dev/wrap"
)

// Implements db.Executor and db.TableVerifier for ClickHouse.
type ClickHouseDB struct {
	conn     driver.Conn
	database string
}

func NewClickHouseDB(config config.ClickHouseConfig) (ClickHouseDB, error) {
	// Options docs: https://clickhouse.com/docs/en/integrations/go#connection-settings
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Address},
		Auth: clickhouse.Auth{
			Database: config.DatabaseName,
			Username: config.Username,
			Password: config.Password,
		},
		Debug: config.Debug,
		Debugf: func(format string, v ...any) {
			fmt.Printf(format+"\n", v...)
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	})
	if err != nil {
		return ClickHouseDB{}, wrap.Error(err, "failed to connect to ClickHouse")
	}

	return ClickHouseDB{conn: conn, database: config.DatabaseName}, nil
}

func (ch ClickHouseDB) Dialect() sqlgen.Dialect {
	return Dialect{}
}

func (ch ClickHouseDB) Close() error {
	return ch.conn.Close()
}

// Execute runs the query, reporting the bytes read by the server as both processed and billed
// (ClickHouse has no separate billing). ClickHouse has no query result cache hit flag in its
// progress packets, so CacheHit is always false.
func (ch ClickHouseDB) Execute(
	ctx context.Context,
	query db.GeneratedQuery,
	options db.ExecuteOptions,
) (db.ExecuteResult, error) {
	var bytesRead atomic.Uint64

	queryOptions := []clickhouse.QueryOption{
		clickhouse.WithProgress(func(progress *clickhouse.Progress) {
			bytesRead.Add(progress.Bytes)
		}),
	}
	if options.QueryID != "" {
		queryOptions = append(queryOptions, clickhouse.WithQueryID(options.QueryID))
	}
	if options.MaxBytesBilled > 0 {
		// See https://clickhouse.com/docs/en/operations/settings/query-complexity#max-bytes-to-read
		queryOptions = append(queryOptions, clickhouse.WithSettings(clickhouse.Settings{
			"max_bytes_to_read": options.MaxBytesBilled,
		}))
	}
	ctx = clickhouse.Context(ctx, queryOptions...)

	args := make([]any, 0, len(query.Parameters))
	for _, param := range query.Parameters {
		args = append(args, clickhouse.Named(param.Name, param.Value))
	}

	rows, err := ch.conn.Query(ctx, query.SQL, args...)
	if err != nil {
		return db.ExecuteResult{}, warehouseError(err, "failed to execute query against ClickHouse")
	}
	defer rows.Close()

	resultRows, err := scanRows(rows)
	if err != nil {
		return db.ExecuteResult{}, warehouseError(err, "failed to read query result")
	}

	bytes := int64(bytesRead.Load())
	return db.ExecuteResult{Rows: resultRows, BytesProcessed: bytes, BytesBilled: bytes}, nil
}

// scanRows scans each row into values of the driver's scan types for the result columns, since
// the result shape differs between queries.
func scanRows(rows driver.Rows) ([]db.Row, error) {
	columnTypes := rows.ColumnTypes()

	var result []db.Row
	for rows.Next() {
		pointers := make([]any, len(columnTypes))
		for i, columnType := range columnTypes {
			pointers[i] = reflect.New(columnType.ScanType()).Interface()
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, wrap.Error(err, "failed to scan result row")
		}

		row := make(db.Row, len(columnTypes))
		for i, columnType := range columnTypes {
			row[columnType.Name()] = normalizeValue(reflect.ValueOf(pointers[i]).Elem())
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to iterate result rows")
	}

	return result, nil
}
