package sqlgen

import (
	"hermannm.dev/eventanalytics/db"
)

const MaxTopNPerGroup = 1000

// BuildTopNPerGroupQuery keeps the first N rows by the order column within each value of the
// partition column, with one ranked window over the table instead of a query per partition.
func BuildTopNPerGroupQuery(
	dialect Dialect,
	table db.Table,
	request db.TopNPerGroupRequest,
) (db.GeneratedQuery, error) {
	if request.N < 1 || request.N > MaxTopNPerGroup {
		return db.GeneratedQuery{}, &db.ValidationError{
			Field:   "n",
			Message: "must be between 1 and 1000",
		}
	}
	if !request.SortOrder.IsValid() {
		return db.GeneratedQuery{}, &db.ValidationError{
			Field:   "sortOrder",
			Message: "must be ASCENDING or DESCENDING",
		}
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	partition, err := db.LookupColumn(table.Scope, request.PartitionColumn)
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	order, err := db.LookupColumn(table.Scope, request.OrderColumn)
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	columns, err := lookupColumns(table.Scope, request.Columns)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)
	partitionExpr := builder.Column(partition)
	orderExpr := builder.Column(order)

	builder.WriteString("SELECT ")
	builder.WriteString(partitionExpr)
	builder.WriteString(" AS partition_value, ")
	builder.WriteString(orderExpr)
	builder.WriteString(" AS order_value, ")
	for _, column := range columns {
		builder.WriteColumn(column)
		builder.WriteString(", ")
	}
	builder.WriteString(dialect.RowNumber())
	builder.WriteString(" OVER (PARTITION BY ")
	builder.WriteString(partitionExpr)
	builder.WriteString(" ORDER BY ")
	builder.WriteString(orderExpr)
	builder.WriteByte(' ')
	builder.WriteString(request.SortOrder.Keyword())
	builder.WriteString(") AS group_rank FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(" AND ")
	builder.WriteString(orderExpr)
	builder.WriteString(" IS NOT NULL")

	builder.WriteString(" QUALIFY group_rank <= ")
	builder.WriteParam("top_n", int64(request.N))
	builder.WriteString(" ORDER BY partition_value, group_rank")

	return builder.Query(), nil
}
