package clickhouse

import (
	"strings"

	"hermannm.dev/enumnames"
	"hermannm.dev/eventanalytics/db"
)

// Dialect writes ClickHouse SQL. QUALIFY requires ClickHouse 24.4 or newer.
type Dialect struct{}

// See https://clickhouse.com/docs/en/sql-reference/functions/date-time-functions
// toStartOfWeek defaults to mode 0, where weeks start on Sunday.
var truncateFunctions = enumnames.NewMap(map[db.DateInterval]string{
	db.DateIntervalYear:    "toStartOfYear",
	db.DateIntervalQuarter: "toStartOfQuarter",
	db.DateIntervalMonth:   "toStartOfMonth",
	db.DateIntervalWeek:    "toStartOfWeek",
	db.DateIntervalDay:     "toDate",
})

var addFunctions = enumnames.NewMap(map[db.DateInterval]string{
	db.DateIntervalYear:    "addYears",
	db.DateIntervalQuarter: "addQuarters",
	db.DateIntervalMonth:   "addMonths",
	db.DateIntervalWeek:    "addWeeks",
	db.DateIntervalDay:     "addDays",
})

// The -OrNull combinator makes the aggregate NULL rather than the type's default value when no
// rows match, as in BigQuery.
// See https://clickhouse.com/docs/en/sql-reference/aggregate-functions/combinators
var conditionalAggregates = enumnames.NewMap(map[db.AggregationKind]string{
	db.AggregationSum:     "sumOrNullIf",
	db.AggregationAverage: "avgOrNullIf",
	db.AggregationMin:     "minOrNullIf",
	db.AggregationMax:     "maxOrNullIf",
	db.AggregationCount:   "countIf",
})

func (Dialect) Name() string {
	return "clickhouse"
}

// Identifiers come from the column allow-list, none of which contain backticks.
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + name + "`"
}

// A database.table reference is quoted per part.
func (dialect Dialect) QuoteTable(reference string) string {
	parts := strings.Split(reference, ".")
	for i, part := range parts {
		parts[i] = dialect.QuoteIdentifier(part)
	}
	return strings.Join(parts, ".")
}

// The expression is converted to UTC first, since truncation otherwise happens in the column's or
// the server's time zone, while spine bounds are computed in UTC.
func (Dialect) TruncateTime(expr string, interval db.DateInterval) string {
	return truncateFunctions.GetNameOrFallback(interval, "toDate") + "(toTimeZone(" + expr + ", 'UTC'))"
}

func (Dialect) DateParam(placeholder string) string {
	return "toDate(" + placeholder + ")"
}

func (Dialect) DateSpine(start string, end string, interval db.DateInterval) string {
	var count string
	switch interval {
	case db.DateIntervalYear:
		count = "dateDiff('year', " + start + ", " + end + ")"
	case db.DateIntervalQuarter:
		count = "dateDiff('quarter', " + start + ", " + end + ")"
	case db.DateIntervalMonth:
		count = "dateDiff('month', " + start + ", " + end + ")"
	case db.DateIntervalWeek:
		// Week starts are always 7 days apart, whereas dateDiff('week') counts Monday boundaries.
		count = "intDiv(dateDiff('day', " + start + ", " + end + "), 7)"
	default:
		count = "dateDiff('day', " + start + ", " + end + ")"
	}

	return "SELECT arrayJoin(arrayMap(i -> " + addFunctions.GetNameOrFallback(interval, "addDays") +
		"(" + start + ", i), range(toUInt32(" + count + " + 1)))) AS bucket"
}

func (Dialect) InList(expr string, placeholder string) string {
	return "has(" + placeholder + ", " + expr + ")"
}

func (Dialect) If(cond string, then string, otherwise string) string {
	return "if(" + cond + ", " + then + ", " + otherwise + ")"
}

func (Dialect) SafeDivide(numerator string, denominator string) string {
	return "if(" + denominator + " = 0, NULL, " + numerator + " / " + denominator + ")"
}

func (Dialect) RowNumber() string {
	return "row_number()"
}

func (Dialect) CountIf(cond string) string {
	return "countIf(" + cond + ")"
}

func (Dialect) AggregateIf(kind db.AggregationKind, expr string, cond string) string {
	return conditionalAggregates.GetNameOrFallback(kind, "countIf") + "(" + expr + ", " + cond + ")"
}

func (Dialect) Corr(x string, y string) string {
	return "corr(toFloat64(" + x + "), toFloat64(" + y + "))"
}

func (Dialect) StddevSamp(expr string) string {
	return "stddevSamp(toFloat64(" + expr + "))"
}

// The delimiter must be a constant. Parameters are bound on the client, so a placeholder is
// substituted with a string literal before the query is sent.
func (Dialect) SplitString(expr string, delimiter string) string {
	return "splitByString(" + delimiter + ", " + expr + ")"
}

func (Dialect) FirstElement(arrayExpr string) string {
	return "arrayElement(" + arrayExpr + ", 1)"
}

func (Dialect) UnnestJoin(arrayExpr string, alias string) string {
	return "ARRAY JOIN " + arrayExpr + " AS " + alias
}

// See https://clickhouse.com/docs/en/sql-reference/aggregate-functions/reference/approxtopcount
func (Dialect) ApproxTopCount(expr string, size string, source string) string {
	return "SELECT tupleElement(item, 1) AS tag_value, tupleElement(item, 2) AS tag_count FROM " +
		"(SELECT arrayJoin(approx_top_count(" + size + ")(" + expr + ")) AS item FROM " + source + ")"
}

// Without join_use_nulls, unmatched LEFT JOIN columns get the type's default value instead of NULL.
func (Dialect) QuerySettings() string {
	return "SETTINGS join_use_nulls = 1"
}
