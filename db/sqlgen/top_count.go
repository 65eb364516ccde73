package sqlgen

import (
	"hermannm.dev/eventanalytics/db"
)

const (
	MinTopCount = 1
	MaxTopCount = 1000
)

// BuildTopCountQuery splits a multi-valued tag field into its entries and asks the warehouse for
// an approximate ranking of the most frequent ones.
//
// The approximate top count functions of both warehouses only accept a literal size, so the size
// is written into the SQL text through QueryBuilder.BoundedInt, after the range check. Everything
// else is bound as usual.
func BuildTopCountQuery(
	dialect Dialect,
	table db.Table,
	request db.TopCountRequest,
) (db.GeneratedQuery, error) {
	builder := NewQueryBuilder(dialect)

	size, err := builder.BoundedInt(request.N, MinTopCount, MaxTopCount, "n")
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	tagField, err := db.LookupTagField(table.Scope, request.Field)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	entries := dialect.SplitString(
		builder.Column(tagField.Column),
		builder.Param("tag_delimiter", tagField.Delimiter),
	)

	tag := "raw_tag"
	if tagField.StripOffset {
		tag = dialect.FirstElement(dialect.SplitString("raw_tag", builder.Param("offset_delimiter", ",")))
	}

	builder.WriteString("WITH tags AS (SELECT ")
	builder.WriteString(tag)
	builder.WriteString(" AS tag FROM ")
	builder.WriteTable(table)
	builder.WriteByte(' ')
	builder.WriteString(dialect.UnnestJoin(entries, "raw_tag"))
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(") ")
	builder.WriteString(dialect.ApproxTopCount("tag", size, "tags WHERE tag IS NOT NULL AND tag != ''"))
	builder.WriteString(" ORDER BY tag_count DESC")

	return builder.Query(), nil
}
