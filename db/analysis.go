package db

import (
	"fmt"
	"slices"
	"time"

	"hermannm.dev/enumnames"
)

// Filter is the base row filter shared by every analytical query. Start and End are required:
// they bound the table's time column (inclusive start, exclusive end), which limits the scan to
// the partitions in range.
type Filter struct {
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Conditions []Condition `json:"conditions,omitempty"`
}

type Condition struct {
	Column   string         `json:"column"`
	Operator FilterOperator `json:"operator"`
	Values   []string       `json:"values"`
}

// ResolvedCondition is a Condition whose column passed the allow-list, and whose values were
// converted to the column's type. For OperatorIn, Value is a typed slice.
type ResolvedCondition struct {
	Column   Column
	Operator FilterOperator
	Value    any
}

const (
	MaxFilterConditions = 20
	MaxFilterInValues   = 1000
)

func (filter Filter) Validate() error {
	if filter.Start.IsZero() || filter.End.IsZero() {
		return invalidParameter("filter", "start and end must both be set to bound the time range")
	}
	if !filter.Start.Before(filter.End) {
		return invalidParameter(
			"filter",
			"start (%s) must be before end (%s)",
			filter.Start.Format(time.RFC3339),
			filter.End.Format(time.RFC3339),
		)
	}
	if len(filter.Conditions) > MaxFilterConditions {
		return invalidParameter("filter.conditions", "at most %d conditions allowed", MaxFilterConditions)
	}
	return nil
}

// ResolveConditions validates the filter and resolves its conditions against the allow-list of
// the given scope.
func (filter Filter) ResolveConditions(scope TableScope) ([]ResolvedCondition, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	resolved := make([]ResolvedCondition, 0, len(filter.Conditions))
	for i, condition := range filter.Conditions {
		field := fmt.Sprintf("filter.conditions[%d]", i)

		column, err := LookupColumn(scope, condition.Column)
		if err != nil {
			return nil, err
		}
		if !condition.Operator.IsValid() {
			return nil, invalidParameter(field, "invalid operator")
		}

		value, err := convertConditionValues(column, condition, field)
		if err != nil {
			return nil, err
		}

		resolved = append(resolved, ResolvedCondition{
			Column:   column,
			Operator: condition.Operator,
			Value:    value,
		})
	}

	return resolved, nil
}

func convertConditionValues(column Column, condition Condition, field string) (any, error) {
	if condition.Operator != OperatorIn {
		if len(condition.Values) != 1 {
			return nil, invalidParameter(
				field, "operator %v takes exactly 1 value, got %d", condition.Operator, len(condition.Values),
			)
		}
		value, err := column.DataType().ConvertValue(condition.Values[0])
		if err != nil {
			return nil, invalidParameter(field, "%v", err)
		}
		return value, nil
	}

	if len(condition.Values) == 0 || len(condition.Values) > MaxFilterInValues {
		return nil, invalidParameter(
			field, "operator IN takes between 1 and %d values, got %d", MaxFilterInValues, len(condition.Values),
		)
	}

	switch column.DataType() {
	case DataTypeText:
		return slices.Clone(condition.Values), nil
	case DataTypeInt:
		return convertAll[int64](column, condition.Values, field)
	case DataTypeFloat:
		return convertAll[float64](column, condition.Values, field)
	default:
		return nil, invalidParameter(field, "column '%s' cannot be filtered with IN", column.Name())
	}
}

func convertAll[T int64 | float64](column Column, fields []string, field string) ([]T, error) {
	values := make([]T, 0, len(fields))
	for _, raw := range fields {
		value, err := column.DataType().ConvertValue(raw)
		if err != nil {
			return nil, invalidParameter(field, "%v", err)
		}
		values = append(values, value.(T))
	}
	return values, nil
}

// Aggregation is a single-column aggregate. Column may be blank for AggregationCount, which then
// counts rows.
type Aggregation struct {
	Kind   AggregationKind `json:"kind"`
	Column string          `json:"column,omitempty"`
}

type TimeSeriesRequest struct {
	Filter      Filter       `json:"filter"`
	Interval    DateInterval `json:"interval"`
	Aggregation Aggregation  `json:"aggregation"`
	// If set (minimum 2), values are densified onto a calendar spine and a trailing moving average
	// over this many buckets is added.
	MovingAverageWindow int `json:"movingAverageWindow,omitempty"`
}

type ExtremesRequest struct {
	Filter Filter `json:"filter"`
	// Numeric column to rank events by, e.g. GoldsteinScale or AvgTone.
	Criterion    string `json:"criterion"`
	MostNegative int    `json:"mostNegative"`
	MostPositive int    `json:"mostPositive"`
	// Extra columns to return for each event. Defaults to DefaultExtremesColumns for the table.
	Columns []string `json:"columns,omitempty"`
}

type ComparisonRequest struct {
	Filter      Filter       `json:"filter"`
	Column      string       `json:"column"`
	Values      []string     `json:"values"`
	Interval    DateInterval `json:"interval"`
	Aggregation Aggregation  `json:"aggregation"`
}

type TrendRequest struct {
	Filter      Filter      `json:"filter"`
	Aggregation Aggregation `json:"aggregation"`
}

type DyadRequest struct {
	Filter      Filter       `json:"filter"`
	ActorField  ActorField   `json:"actorField"`
	ActorA      string       `json:"actorA"`
	ActorB      string       `json:"actorB"`
	Interval    DateInterval `json:"interval"`
	Aggregation Aggregation  `json:"aggregation"`
}

type TopNPerGroupRequest struct {
	Filter          Filter    `json:"filter"`
	PartitionColumn string    `json:"partitionColumn"`
	OrderColumn     string    `json:"orderColumn"`
	SortOrder       SortOrder `json:"sortOrder"`
	N               int       `json:"n"`
	Columns         []string  `json:"columns,omitempty"`
}

type TopCountRequest struct {
	Filter Filter `json:"filter"`
	Field  string `json:"field"`
	N      int    `json:"n"`
}

// DefaultExtremesColumns are returned for each event by extremes queries that do not name their
// own columns.
var DefaultExtremesColumns = map[TableScope][]string{
	ScopeEvents: {
		"GLOBALEVENTID", "SQLDATE", "Actor1Name", "Actor2Name", "EventCode", "SOURCEURL",
	},
	ScopeGKG:      {"GKGRECORDID", "DATE", "SourceCommonName", "DocumentIdentifier"},
	ScopeMentions: {"GLOBALEVENTID", "MentionTimeDate", "MentionSourceName", "MentionIdentifier"},
}

// ActorField selects which pair of event actor columns a dyad is matched on.
type ActorField int8

const (
	ActorFieldCountryCode ActorField = iota + 1
	ActorFieldCode
	ActorFieldName
)

var actorFieldNames = enumnames.NewMap(map[ActorField]string{
	ActorFieldCountryCode: "COUNTRY_CODE",
	ActorFieldCode:        "CODE",
	ActorFieldName:        "NAME",
})

func (field ActorField) IsValid() bool {
	_, ok := actorFieldNames.GetName(field)
	return ok
}

func (field ActorField) String() string {
	return actorFieldNames.GetNameOrFallback(field, "INVALID_ACTOR_FIELD")
}

func (field ActorField) MarshalJSON() ([]byte, error) {
	return actorFieldNames.MarshalToNameJSON(field)
}

func (field *ActorField) UnmarshalJSON(bytes []byte) error {
	return actorFieldNames.UnmarshalFromNameJSON(bytes, field)
}

// ColumnNames returns the acting and receiving actor column names for the field.
func (field ActorField) ColumnNames() (actor1 string, actor2 string) {
	switch field {
	case ActorFieldCode:
		return "Actor1Code", "Actor2Code"
	case ActorFieldName:
		return "Actor1Name", "Actor2Name"
	default:
		return "Actor1CountryCode", "Actor2CountryCode"
	}
}
