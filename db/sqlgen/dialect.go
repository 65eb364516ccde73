package sqlgen

import "hermannm.dev/eventanalytics/db"

// Dialect writes the SQL fragments that differ between warehouses. Every argument named expr,
// cond, x or y is SQL produced by a QueryBuilder (quoted allow-listed columns, placeholders and
// fixed keywords), so implementations compose them without further escaping.
type Dialect interface {
	Name() string

	QuoteIdentifier(name string) string
	QuoteTable(reference string) string

	// TruncateTime returns a DATE expression for the start of the interval containing expr.
	TruncateTime(expr string, interval db.DateInterval) string
	// DateParam converts a placeholder bound to a "YYYY-MM-DD" string to a DATE.
	DateParam(placeholder string) string
	// DateSpine returns a SELECT yielding one row per interval in [start, end], in a column named
	// bucket. start and end are DATE expressions already truncated to the interval.
	DateSpine(start string, end string, interval db.DateInterval) string

	// InList returns a condition that expr is one of the elements of the array placeholder.
	InList(expr string, placeholder string) string
	If(cond string, then string, otherwise string) string
	// SafeDivide yields NULL instead of failing when denominator is 0.
	SafeDivide(numerator string, denominator string) string
	RowNumber() string

	CountIf(cond string) string
	// AggregateIf applies a single-column aggregate to the rows matching cond.
	AggregateIf(kind db.AggregationKind, expr string, cond string) string
	Corr(x string, y string) string
	StddevSamp(expr string) string

	SplitString(expr string, delimiter string) string
	FirstElement(arrayExpr string) string
	// UnnestJoin joins each row with the elements of arrayExpr, aliased as alias.
	UnnestJoin(arrayExpr string, alias string) string
	// ApproxTopCount returns a SELECT of tag_value and tag_count columns for the top size values of
	// expr in source. size is an integer literal from QueryBuilder.BoundedInt.
	ApproxTopCount(expr string, size string, source string) string

	// QuerySettings is appended to every query, or empty.
	QuerySettings() string
}
