package sqlgen

import (
	"fmt"
	"strconv"

	"hermannm.dev/eventanalytics/db"
)

const (
	MinComparisonValues = 2
	MaxComparisonValues = 10
)

// BuildComparisonQuery pivots the aggregation across the compared values of one column per time
// bucket. Each value gets a conditional aggregate (value_<i>) and a conditional count (count_<i>)
// within the same scan, in the order of request.Values.
func BuildComparisonQuery(
	dialect Dialect,
	table db.Table,
	request db.ComparisonRequest,
) (db.GeneratedQuery, error) {
	if err := validateInterval(request.Interval); err != nil {
		return db.GeneratedQuery{}, err
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	column, err := db.LookupColumn(table.Scope, request.Column)
	if err != nil {
		return db.GeneratedQuery{}, err
	}
	values, err := comparisonValues(column, request.Values)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)
	columnExpr := builder.Column(column)

	builder.WriteString("SELECT ")
	builder.WriteString(dialect.TruncateTime(builder.Column(table.TimeColumn), request.Interval))
	builder.WriteString(" AS bucket")

	for i, value := range values {
		cond := columnExpr + " = " + builder.Param(fmt.Sprintf("compare_value_%d", i), value)

		aggregate, err := conditionalAggregateExpression(builder, table, request.Aggregation, cond)
		if err != nil {
			return db.GeneratedQuery{}, err
		}

		index := strconv.Itoa(i)
		builder.WriteString(", ")
		builder.WriteString(aggregate)
		builder.WriteString(" AS value_")
		builder.WriteString(index)
		builder.WriteString(", ")
		builder.WriteString(dialect.CountIf(cond))
		builder.WriteString(" AS count_")
		builder.WriteString(index)
	}

	builder.WriteString(" FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(" AND ")
	builder.WriteString(dialect.InList(columnExpr, builder.Param("compare_values", typedSlice(values))))
	builder.WriteString(" GROUP BY bucket ORDER BY bucket")

	return builder.Query(), nil
}

// comparisonValues converts the compared values to the column's type, and checks that there are
// between 2 and 10 of them with no duplicates.
func comparisonValues(column db.Column, rawValues []string) ([]any, error) {
	if len(rawValues) < MinComparisonValues || len(rawValues) > MaxComparisonValues {
		return nil, &db.ValidationError{
			Field: "values",
			Message: fmt.Sprintf(
				"must have between %d and %d values, got %d",
				MinComparisonValues,
				MaxComparisonValues,
				len(rawValues),
			),
		}
	}

	values := make([]any, 0, len(rawValues))
	seen := make(map[any]string, len(rawValues))

	for _, raw := range rawValues {
		value, err := column.DataType().ConvertValue(raw)
		if err != nil {
			return nil, &db.ValidationError{Field: "values", Message: err.Error()}
		}

		if previous, duplicate := seen[value]; duplicate {
			return nil, &db.ValidationError{
				Field:   "values",
				Message: fmt.Sprintf("'%s' duplicates '%s'", raw, previous),
			}
		}
		seen[value] = raw

		values = append(values, value)
	}

	return values, nil
}

// typedSlice converts values of a single column type to the typed slice that array parameters are
// bound as.
func typedSlice(values []any) any {
	if len(values) == 0 {
		return []string{}
	}

	switch values[0].(type) {
	case int64:
		return convertSlice[int64](values)
	case float64:
		return convertSlice[float64](values)
	default:
		return convertSlice[string](values)
	}
}

func convertSlice[T any](values []any) []T {
	converted := make([]T, 0, len(values))
	for _, value := range values {
		converted = append(converted, value.(T))
	}
	return converted
}
