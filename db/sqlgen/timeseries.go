package sqlgen

import (
	"fmt"
	"time"

	"hermannm.dev/eventanalytics/db"
)

const (
	MinMovingAverageWindow = 2
	MaxMovingAverageWindow = 366
)

// BuildTimeSeriesQuery buckets the aggregation by the request's interval.
//
// Without a moving average window, only buckets with data are returned. With a window, the
// aggregated buckets are left-joined onto a dense calendar spine first, so that the window frame
// ("N rows preceding") spans N calendar intervals even where the source data has gaps. Counts and
// sums read 0 for missing buckets; other aggregates stay NULL, so they do not drag the average
// towards 0.
func BuildTimeSeriesQuery(
	dialect Dialect,
	table db.Table,
	request db.TimeSeriesRequest,
) (db.GeneratedQuery, error) {
	if err := validateInterval(request.Interval); err != nil {
		return db.GeneratedQuery{}, err
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)

	var windowOffset string
	if request.MovingAverageWindow != 0 {
		var err error
		windowOffset, err = builder.BoundedInt(
			request.MovingAverageWindow-1,
			MinMovingAverageWindow-1,
			MaxMovingAverageWindow-1,
			"movingAverageWindow",
		)
		if err != nil {
			return db.GeneratedQuery{}, &db.ValidationError{
				Field:   "movingAverageWindow",
				Message: fmt.Sprintf(
					"must be between %d and %d when set, got %d",
					MinMovingAverageWindow,
					MaxMovingAverageWindow,
					request.MovingAverageWindow,
				),
			}
		}
	}

	if windowOffset == "" {
		if err := writeBucketAggregation(builder, table, request); err != nil {
			return db.GeneratedQuery{}, err
		}
		builder.WriteString(" ORDER BY bucket")
		return builder.Query(), nil
	}

	spineStart, spineEnd := spineBounds(request.Filter, request.Interval)

	builder.WriteString("WITH spine AS (")
	builder.WriteString(dialect.DateSpine(
		dialect.DateParam(builder.Param("spine_start", spineStart)),
		dialect.DateParam(builder.Param("spine_end", spineEnd)),
		request.Interval,
	))
	builder.WriteString("), aggregated AS (")
	if err := writeBucketAggregation(builder, table, request); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(") ")

	value := "aggregated.value"
	if request.Aggregation.Kind.FillsWithZero() {
		value = "COALESCE(aggregated.value, 0)"
	}

	builder.WriteString("SELECT spine.bucket AS bucket")
	builder.WriteString(", COALESCE(aggregated.event_count, 0) AS event_count, ")
	builder.WriteString(value)
	builder.WriteString(" AS value, AVG(")
	builder.WriteString(value)
	builder.WriteString(") OVER (ORDER BY spine.bucket ROWS BETWEEN ")
	builder.WriteString(windowOffset)
	builder.WriteString(" PRECEDING AND CURRENT ROW) AS moving_average")
	builder.WriteString(" FROM spine LEFT JOIN aggregated ON spine.bucket = aggregated.bucket")
	builder.WriteString(" ORDER BY bucket")

	return builder.Query(), nil
}

func writeBucketAggregation(
	builder *QueryBuilder,
	table db.Table,
	request db.TimeSeriesRequest,
) error {
	aggregate, err := aggregateExpression(builder, table, request.Aggregation)
	if err != nil {
		return err
	}

	builder.WriteString("SELECT ")
	builder.WriteString(builder.dialect.TruncateTime(builder.Column(table.TimeColumn), request.Interval))
	builder.WriteString(" AS bucket, COUNT(*) AS event_count, ")
	builder.WriteString(aggregate)
	builder.WriteString(" AS value FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return err
	}
	builder.WriteString(" GROUP BY bucket")
	return nil
}

// spineBounds returns the first and last bucket start of the filter's range, as dates. The end of
// the filter is exclusive, so the last bucket is the one containing the instant before it.
func spineBounds(filter db.Filter, interval db.DateInterval) (start string, end string) {
	const dateFormat = "2006-01-02"
	first := interval.Truncate(filter.Start)
	last := interval.Truncate(filter.End.Add(-time.Nanosecond))
	return first.Format(dateFormat), last.Format(dateFormat)
}
