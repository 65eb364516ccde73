package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/wrap"
)

func (ch ClickHouseDB) VerifyTable(ctx context.Context, table db.Table) ([]string, error) {
	database, tableName := ch.splitTableReference(table.Reference)

	rows, err := ch.conn.Query(
		ctx,
		"SELECT name, type FROM system.columns WHERE database = @database AND table = @table",
		clickhouse.Named("database", database),
		clickhouse.Named("table", tableName),
	)
	if err != nil {
		return nil, warehouseError(err, "failed to get table columns from ClickHouse")
	}
	defer rows.Close()

	columns := make(map[string]db.DataType)
	for rows.Next() {
		var name, columnType string
		if err := rows.Scan(&name, &columnType); err != nil {
			return nil, wrap.Error(err, "failed to scan column description")
		}
		columns[name] = dataTypeFromClickHouse(columnType)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap.Error(err, "failed to iterate column descriptions")
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table '%s' not found in database '%s'", tableName, database)
	}

	return db.VerifyColumns(table, columns)
}

// A reference without a database part refers to the connection's database.
func (ch ClickHouseDB) splitTableReference(reference string) (database string, table string) {
	if database, table, ok := strings.Cut(reference, "."); ok {
		return database, table
	}
	return ch.database, reference
}

// See https://clickhouse.com/docs/en/sql-reference/data-types
func dataTypeFromClickHouse(columnType string) db.DataType {
	for _, wrapper := range []string{"LowCardinality(", "Nullable("} {
		if strings.HasPrefix(columnType, wrapper) && strings.HasSuffix(columnType, ")") {
			columnType = columnType[len(wrapper) : len(columnType)-1]
		}
	}

	switch {
	case strings.HasPrefix(columnType, "Int"), strings.HasPrefix(columnType, "UInt"):
		return db.DataTypeInt
	case strings.HasPrefix(columnType, "Float"), strings.HasPrefix(columnType, "Decimal"):
		return db.DataTypeFloat
	case columnType == "String", strings.HasPrefix(columnType, "FixedString"):
		return db.DataTypeText
	case strings.HasPrefix(columnType, "DateTime"), strings.HasPrefix(columnType, "Date"):
		return db.DataTypeTimestamp
	default:
		return 0
	}
}
