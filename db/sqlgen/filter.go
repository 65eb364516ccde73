package sqlgen

import (
	"fmt"

	"hermannm.dev/eventanalytics/db"
)

// writeFilter writes the WHERE clause for the base row filter. The time range predicate is always
// written first: without it the query would scan every partition of the table.
func writeFilter(builder *QueryBuilder, table db.Table, filter db.Filter) error {
	conditions, err := filter.ResolveConditions(table.Scope)
	if err != nil {
		return err
	}
	if table.TimeColumn.IsZero() {
		return &db.IdentifierError{Kind: "time column", Scope: table.Scope.String()}
	}

	timeColumn := builder.Column(table.TimeColumn)

	builder.WriteString(" WHERE ")
	builder.WriteString(timeColumn)
	builder.WriteString(" >= ")
	builder.WriteParam("start_time", filter.Start.UTC())
	builder.WriteString(" AND ")
	builder.WriteString(timeColumn)
	builder.WriteString(" < ")
	builder.WriteParam("end_time", filter.End.UTC())

	for i, condition := range conditions {
		builder.WriteString(" AND ")

		column := builder.Column(condition.Column)
		placeholder := builder.Param(fmt.Sprintf("filter_%d", i), condition.Value)

		if condition.Operator == db.OperatorIn {
			builder.WriteString(builder.dialect.InList(column, placeholder))
		} else {
			builder.WriteString(column)
			builder.WriteByte(' ')
			builder.WriteString(condition.Operator.Symbol())
			builder.WriteByte(' ')
			builder.WriteString(placeholder)
		}
	}

	return nil
}

// aggregateExpression resolves and writes a single-column aggregate. COUNT without a column counts
// rows; every other kind requires a numeric column.
func aggregateExpression(
	builder *QueryBuilder,
	table db.Table,
	aggregation db.Aggregation,
) (string, error) {
	if !aggregation.Kind.IsValid() {
		return "", &db.ValidationError{Field: "aggregation.kind", Message: "invalid aggregation kind"}
	}

	if aggregation.Kind == db.AggregationCount {
		if aggregation.Column == "" {
			return "COUNT(*)", nil
		}
		column, err := db.LookupColumn(table.Scope, aggregation.Column)
		if err != nil {
			return "", err
		}
		return "COUNT(" + builder.Column(column) + ")", nil
	}

	column, err := db.LookupNumericColumn(table.Scope, aggregation.Column, "aggregation.column")
	if err != nil {
		return "", err
	}
	return aggregation.Kind.SQLFunction() + "(" + builder.Column(column) + ")", nil
}

// conditionalAggregateExpression is aggregateExpression restricted to the rows matching cond.
func conditionalAggregateExpression(
	builder *QueryBuilder,
	table db.Table,
	aggregation db.Aggregation,
	cond string,
) (string, error) {
	if !aggregation.Kind.IsValid() {
		return "", &db.ValidationError{Field: "aggregation.kind", Message: "invalid aggregation kind"}
	}

	if aggregation.Kind == db.AggregationCount {
		if aggregation.Column == "" {
			return builder.dialect.CountIf(cond), nil
		}
		column, err := db.LookupColumn(table.Scope, aggregation.Column)
		if err != nil {
			return "", err
		}
		return builder.dialect.CountIf(
			"(" + cond + ") AND " + builder.Column(column) + " IS NOT NULL",
		), nil
	}

	column, err := db.LookupNumericColumn(table.Scope, aggregation.Column, "aggregation.column")
	if err != nil {
		return "", err
	}
	return builder.dialect.AggregateIf(aggregation.Kind, builder.Column(column), cond), nil
}

func validateInterval(interval db.DateInterval) error {
	if !interval.IsValid() {
		return &db.ValidationError{Field: "interval", Message: "invalid date interval"}
	}
	return nil
}
