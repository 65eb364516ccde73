package bigquery

import (
	"hermannm.dev/enumnames"
	"hermannm.dev/eventanalytics/db"
)

// Dialect writes GoogleSQL, as documented at
// https://cloud.google.com/bigquery/docs/reference/standard-sql/query-syntax.
type Dialect struct{}

// See https://cloud.google.com/bigquery/docs/reference/standard-sql/date_functions#date_trunc
// WEEK is equivalent to WEEK(SUNDAY).
var truncateParts = enumnames.NewMap(map[db.DateInterval]string{
	db.DateIntervalYear:    "YEAR",
	db.DateIntervalQuarter: "QUARTER",
	db.DateIntervalMonth:   "MONTH",
	db.DateIntervalWeek:    "WEEK",
	db.DateIntervalDay:     "DAY",
})

var aggregateFunctions = enumnames.NewMap(map[db.AggregationKind]string{
	db.AggregationSum:     "SUM",
	db.AggregationAverage: "AVG",
	db.AggregationMin:     "MIN",
	db.AggregationMax:     "MAX",
	db.AggregationCount:   "COUNT",
})

func (Dialect) Name() string {
	return "bigquery"
}

// Identifiers come from the column allow-list, none of which contain backticks.
func (Dialect) QuoteIdentifier(name string) string {
	return "`" + name + "`"
}

// A fully qualified project.dataset.table reference may be quoted as a whole.
func (Dialect) QuoteTable(reference string) string {
	return "`" + reference + "`"
}

func (Dialect) TruncateTime(expr string, interval db.DateInterval) string {
	if interval == db.DateIntervalDay {
		return "DATE(" + expr + ")"
	}
	return "DATE_TRUNC(DATE(" + expr + "), " + truncateParts.GetNameOrFallback(interval, "DAY") + ")"
}

func (Dialect) DateParam(placeholder string) string {
	return "CAST(" + placeholder + " AS DATE)"
}

func (Dialect) DateSpine(start string, end string, interval db.DateInterval) string {
	return "SELECT bucket FROM UNNEST(GENERATE_DATE_ARRAY(" + start + ", " + end +
		", INTERVAL 1 " + truncateParts.GetNameOrFallback(interval, "DAY") + ")) AS bucket"
}

func (Dialect) InList(expr string, placeholder string) string {
	return expr + " IN UNNEST(" + placeholder + ")"
}

func (Dialect) If(cond string, then string, otherwise string) string {
	return "IF(" + cond + ", " + then + ", " + otherwise + ")"
}

func (Dialect) SafeDivide(numerator string, denominator string) string {
	return "SAFE_DIVIDE(" + numerator + ", " + denominator + ")"
}

func (Dialect) RowNumber() string {
	return "ROW_NUMBER()"
}

func (Dialect) CountIf(cond string) string {
	return "COUNTIF(" + cond + ")"
}

// Aggregate functions ignore NULL, so rows not matching cond are mapped to NULL.
func (Dialect) AggregateIf(kind db.AggregationKind, expr string, cond string) string {
	return aggregateFunctions.GetNameOrFallback(kind, "COUNT") + "(IF(" + cond + ", " + expr + ", NULL))"
}

func (Dialect) Corr(x string, y string) string {
	return "CORR(" + x + ", " + y + ")"
}

func (Dialect) StddevSamp(expr string) string {
	return "STDDEV_SAMP(" + expr + ")"
}

func (Dialect) SplitString(expr string, delimiter string) string {
	return "SPLIT(" + expr + ", " + delimiter + ")"
}

func (Dialect) FirstElement(arrayExpr string) string {
	return arrayExpr + "[SAFE_OFFSET(0)]"
}

func (Dialect) UnnestJoin(arrayExpr string, alias string) string {
	return "CROSS JOIN UNNEST(" + arrayExpr + ") AS " + alias
}

// See https://cloud.google.com/bigquery/docs/reference/standard-sql/approximate_aggregate_functions#approx_top_count
func (Dialect) ApproxTopCount(expr string, size string, source string) string {
	return "SELECT item.value AS tag_value, item.count AS tag_count FROM UNNEST((SELECT APPROX_TOP_COUNT(" +
		expr + ", " + size + ") FROM " + source + ")) AS item"
}

func (Dialect) QuerySettings() string {
	return ""
}
