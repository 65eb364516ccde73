package sqlgen

import (
	"hermannm.dev/eventanalytics/db"
)

const MaxExtremes = 1000

// BuildExtremesQuery finds the rows with the lowest and highest criterion values in a single scan:
// each row is numbered both ascending and descending, and rows within either limit are kept.
func BuildExtremesQuery(
	dialect Dialect,
	table db.Table,
	request db.ExtremesRequest,
) (db.GeneratedQuery, error) {
	if err := validateExtremesLimits(request.MostNegative, request.MostPositive); err != nil {
		return db.GeneratedQuery{}, err
	}
	if err := request.Filter.Validate(); err != nil {
		return db.GeneratedQuery{}, err
	}

	criterion, err := db.LookupNumericColumn(table.Scope, request.Criterion, "criterion")
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	columnNames := request.Columns
	if len(columnNames) == 0 {
		columnNames = db.DefaultExtremesColumns[table.Scope]
	}
	columns, err := lookupColumns(table.Scope, columnNames)
	if err != nil {
		return db.GeneratedQuery{}, err
	}

	builder := NewQueryBuilder(dialect)
	criterionExpr := builder.Column(criterion)

	builder.WriteString("SELECT ")
	for _, column := range columns {
		builder.WriteColumn(column)
		builder.WriteString(", ")
	}
	builder.WriteString(criterionExpr)
	builder.WriteString(" AS criterion_value, ")
	builder.WriteString(dialect.RowNumber())
	builder.WriteString(" OVER (ORDER BY ")
	builder.WriteString(criterionExpr)
	builder.WriteString(" ASC) AS rank_asc, ")
	builder.WriteString(dialect.RowNumber())
	builder.WriteString(" OVER (ORDER BY ")
	builder.WriteString(criterionExpr)
	builder.WriteString(" DESC) AS rank_desc FROM ")
	builder.WriteTable(table)
	if err := writeFilter(builder, table, request.Filter); err != nil {
		return db.GeneratedQuery{}, err
	}
	builder.WriteString(" AND ")
	builder.WriteString(criterionExpr)
	builder.WriteString(" IS NOT NULL")

	builder.WriteString(" QUALIFY rank_asc <= ")
	builder.WriteParam("most_negative", int64(request.MostNegative))
	builder.WriteString(" OR rank_desc <= ")
	builder.WriteParam("most_positive", int64(request.MostPositive))
	builder.WriteString(" ORDER BY rank_asc")

	return builder.Query(), nil
}

func validateExtremesLimits(mostNegative int, mostPositive int) error {
	for _, limit := range []struct {
		field string
		value int
	}{
		{"mostNegative", mostNegative},
		{"mostPositive", mostPositive},
	} {
		if limit.value < 0 || limit.value > MaxExtremes {
			return &db.ValidationError{
				Field:   limit.field,
				Message: "must be between 0 and 1000",
			}
		}
	}

	if mostNegative == 0 && mostPositive == 0 {
		return &db.ValidationError{
			Field:   "mostNegative/mostPositive",
			Message: "at least one of them must be positive",
		}
	}

	return nil
}

// lookupColumns resolves a projection list, rejecting duplicates and unknown names.
func lookupColumns(scope db.TableScope, names []string) ([]db.Column, error) {
	columns := make([]db.Column, 0, len(names))
	seen := make(map[string]struct{}, len(names))

	for _, name := range names {
		if _, duplicate := seen[name]; duplicate {
			return nil, &db.ValidationError{
				Field:   "columns",
				Message: "column '" + name + "' is listed more than once",
			}
		}
		seen[name] = struct{}{}

		column, err := db.LookupColumn(scope, name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, column)
	}

	return columns, nil
}
