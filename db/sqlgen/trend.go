package sqlgen

import (
	"hermannm.dev/eventanalytics/db"
)

// BuildTrendQuery fits a least-squares line through the daily buckets of the aggregation, indexed
// by their ordinal position. It returns a single row with data_points, first_bucket, last_bucket,
// mean_value, correlation and slope.
//
// The slope is derived from the correlation, scaled by the standard deviations of value and index.
// When every value is identical, the value's standard deviation is 0 and the correlation is
// undefined: the query reports a correlation and slope of 0 instead. The division by the index's
// standard deviation is a safe division, since it is 0 (or NULL) with fewer than 2 buckets.
//
// The correlation is a two-column aggregate, so it lives here rather than in db.AggregationKind.
func BuildTrendQuery(
	dialect Dialect,
	table db.Table,
	request db.TrendRequest,
) (db.GeneratedQuery, error) {
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)

	aggregate, err := aggregateExpression(builder, table, request.Aggregation)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder.WriteString("WITH daily AS (SELECT ")
	builder.WriteString(dialect.TruncateTime(builder.Column(table.TimeColumn), db.DateIntervalDay))
	builder.WriteString(" AS bucket, ")
	builder.WriteString(aggregate)
	builder.WriteString(" AS value FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(" GROUP BY bucket), indexed AS (SELECT bucket, value, ")
	builder.WriteString(dialect.RowNumber())
	builder.WriteString(" OVER (ORDER BY bucket) AS bucket_index FROM daily WHERE value IS NOT NULL) ")

	valueStddev := dialect.StddevSamp("value")
	correlation := dialect.If(valueStddev+" = 0", "0", dialect.Corr("bucket_index", "value"))

	builder.WriteString("SELECT COUNT(*) AS data_points")
	builder.WriteString(", MIN(bucket) AS first_bucket")
	builder.WriteString(", MAX(bucket) AS last_bucket")
	builder.WriteString(", AVG(value) AS mean_value, ")
	builder.WriteString(correlation)
	builder.WriteString(" AS correlation, ")
	builder.WriteString(dialect.SafeDivide(
		correlation+" * "+valueStddev,
		dialect.StddevSamp("bucket_index"),
	))
	builder.WriteString(" AS slope FROM indexed")

	return builder.Query(), nil
}
