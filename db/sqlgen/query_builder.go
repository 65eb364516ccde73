package sqlgen

import (
	"fmt"
	"strconv"
	"strings"

	"hermannm.dev/eventanalytics/db"
)

// QueryBuilder accumulates SQL text and the values bound to its placeholders. Identifiers can only
// be written as db.Column/db.Table values, which come from the allow-list, and values only as
// named parameters. BoundedInt is the one way to put a literal into the SQL text.
type QueryBuilder struct {
	strings.Builder
	dialect    Dialect
	parameters []db.Parameter
	paramNames map[string]struct{}
}

func NewQueryBuilder(dialect Dialect) *QueryBuilder {
	return &QueryBuilder{dialect: dialect, paramNames: make(map[string]struct{})}
}

// Column returns the quoted column, for use in expressions passed to the dialect.
func (builder *QueryBuilder) Column(column db.Column) string {
	return builder.dialect.QuoteIdentifier(column.Name())
}

func (builder *QueryBuilder) WriteColumn(column db.Column) {
	builder.WriteString(builder.Column(column))
}

func (builder *QueryBuilder) WriteTable(table db.Table) {
	builder.WriteString(builder.dialect.QuoteTable(table.Reference))
}

// Param binds the value under the given name, and returns its placeholder. Names are chosen by the
// builders, never by callers; a numeric suffix is added if the name is already bound.
func (builder *QueryBuilder) Param(name string, value any) string {
	unique := name
	for i := 2; ; i++ {
		if _, taken := builder.paramNames[unique]; !taken {
			break
		}
		unique = name + "_" + strconv.Itoa(i)
	}

	builder.paramNames[unique] = struct{}{}
	builder.parameters = append(builder.parameters, db.Parameter{Name: unique, Value: value})
	return "@" + unique
}

func (builder *QueryBuilder) WriteParam(name string, value any) {
	builder.WriteString(builder.Param(name, value))
}

// BoundedInt returns the integer as SQL literal text, after checking that it lies within
// [min, max]. It is only for arguments that both warehouses reject as bound parameters, and has
// exactly two callers: BuildTopCountQuery (the approximate top count size) and
// BuildTimeSeriesQuery (the moving average frame offset in "ROWS BETWEEN n PRECEDING").
func (builder *QueryBuilder) BoundedInt(value int, min int, max int, field string) (string, error) {
	if value < min || value > max {
		return "", &db.ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be between %d and %d, got %d", min, max, value),
		}
	}
	return strconv.Itoa(value), nil
}

// Query finishes the builder, appending any trailing settings the dialect requires.
func (builder *QueryBuilder) Query() db.GeneratedQuery {
	sql := builder.String()
	if settings := builder.dialect.QuerySettings(); settings != "" {
		sql += " " + settings
	}

	parameters := make([]db.Parameter, len(builder.parameters))
	copy(parameters, builder.parameters)

	return db.GeneratedQuery{SQL: sql, Parameters: parameters}
}
