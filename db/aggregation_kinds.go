package db

import (
	"hermannm.dev/enumnames"
)

type AggregationKind int8

const (
	AggregationSum AggregationKind = iota + 1
	AggregationAverage
	AggregationMin
	AggregationMax
	AggregationCount
)

var aggregationMap = enumnames.NewMap(map[AggregationKind]string{
	AggregationSum:     "SUM",
	AggregationAverage: "AVERAGE",
	AggregationMin:     "MIN",
	AggregationMax:     "MAX",
	AggregationCount:   "COUNT",
})

func (kind AggregationKind) IsValid() bool {
	_, ok := aggregationMap.GetName(kind)
	return ok
}

func (kind AggregationKind) String() string {
	return aggregationMap.GetNameOrFallback(kind, "INVALID_AGGREGATION")
}

func (kind AggregationKind) MarshalJSON() ([]byte, error) {
	return aggregationMap.MarshalToNameJSON(kind)
}

func (kind *AggregationKind) UnmarshalJSON(bytes []byte) error {
	return aggregationMap.UnmarshalFromNameJSON(bytes, kind)
}

// FillsWithZero reports whether a bucket with no source rows has a well-defined value of 0 for
// this kind. Counts and sums do; averages, minimums and maximums of nothing stay null.
func (kind AggregationKind) FillsWithZero() bool {
	return kind == AggregationCount || kind == AggregationSum
}

// SQLFunction is the single-column aggregate function name shared by both supported warehouses.
func (kind AggregationKind) SQLFunction() string {
	switch kind {
	case AggregationSum:
		return "SUM"
	case AggregationAverage:
		return "AVG"
	case AggregationMin:
		return "MIN"
	case AggregationMax:
		return "MAX"
	default:
		return "COUNT"
	}
}
