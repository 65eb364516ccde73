package db

import "time"

// The result types below share no base type. Each carries the SQL it was produced by and the
// execution metadata, including when it holds no data.

type TimeSeriesResult struct {
	Interval            DateInterval       `json:"interval"`
	Aggregation         Aggregation        `json:"aggregation"`
	MovingAverageWindow int                `json:"movingAverageWindow,omitempty"`
	Buckets             []TimeSeriesBucket `json:"buckets"`
	SQL                 string             `json:"sql"`
	Metadata            QueryMetadata      `json:"metadata"`
}

type TimeSeriesBucket struct {
	Bucket     time.Time `json:"bucket"`
	EventCount int64     `json:"eventCount"`
	// Nil for buckets without data when the aggregation does not fill with zero.
	Value         *float64 `json:"value"`
	MovingAverage *float64 `json:"movingAverage,omitempty"`
}

type ExtremeEventsResult struct {
	Criterion    string        `json:"criterion"`
	MostNegative []RankedEvent `json:"mostNegative"`
	MostPositive []RankedEvent `json:"mostPositive"`
	SQL          string        `json:"sql"`
	Metadata     QueryMetadata `json:"metadata"`
}

type RankedEvent struct {
	Rank   int64          `json:"rank"`
	Value  float64        `json:"value"`
	Fields map[string]any `json:"fields"`
}

type ComparisonResult struct {
	Column      string          `json:"column"`
	Values      []string        `json:"values"`
	Interval    DateInterval    `json:"interval"`
	Aggregation Aggregation     `json:"aggregation"`
	Rows        []ComparisonRow `json:"rows"`
	SQL         string          `json:"sql"`
	Metadata    QueryMetadata   `json:"metadata"`
}

type ComparisonRow struct {
	Bucket time.Time `json:"bucket"`
	// In the same order as ComparisonResult.Values.
	Entities []ComparisonEntry `json:"entities"`
}

type ComparisonEntry struct {
	Value     string   `json:"value"`
	Aggregate *float64 `json:"aggregate"`
	Count     int64    `json:"count"`
}

type TrendDirection string

const (
	TrendIncreasing TrendDirection = "INCREASING"
	TrendDecreasing TrendDirection = "DECREASING"
	TrendFlat       TrendDirection = "FLAT"
)

type TrendResult struct {
	Aggregation Aggregation `json:"aggregation"`
	DataPoints  int         `json:"dataPoints"`
	FirstBucket time.Time   `json:"firstBucket"`
	LastBucket  time.Time   `json:"lastBucket"`
	// Change in the metric per bucket, from the least-squares line through the daily buckets with
	// data, indexed by their position.
	Slope       float64 `json:"slope"`
	Correlation float64 `json:"correlation"`
	RSquared    float64 `json:"rSquared"`
	// Two-sided p-value of the slope, from a t-test with DataPoints-2 degrees of freedom. Nil when
	// there are too few points for the test.
	PValue    *float64       `json:"pValue"`
	MeanValue float64        `json:"meanValue"`
	Direction TrendDirection `json:"direction"`
	SQL       string         `json:"sql"`
	Metadata  QueryMetadata  `json:"metadata"`
}

type DyadResult struct {
	ActorField  ActorField    `json:"actorField"`
	ActorA      string        `json:"actorA"`
	ActorB      string        `json:"actorB"`
	Interval    DateInterval  `json:"interval"`
	Aggregation Aggregation   `json:"aggregation"`
	AToB        []DyadPoint   `json:"aToB"`
	BToA        []DyadPoint   `json:"bToA"`
	SQL         string        `json:"sql"`
	Metadata    QueryMetadata `json:"metadata"`
}

type DyadPoint struct {
	Bucket     time.Time `json:"bucket"`
	EventCount int64     `json:"eventCount"`
	Value      *float64  `json:"value"`
}

type PartitionedTopNResult struct {
	PartitionColumn string                 `json:"partitionColumn"`
	OrderColumn     string                 `json:"orderColumn"`
	SortOrder       SortOrder              `json:"sortOrder"`
	N               int                    `json:"n"`
	Groups          map[string][]RankedRow `json:"groups"`
	SQL             string                 `json:"sql"`
	Metadata        QueryMetadata          `json:"metadata"`
}

type RankedRow struct {
	Rank       int64          `json:"rank"`
	OrderValue any            `json:"orderValue"`
	Fields     map[string]any `json:"fields"`
}

type TopCountResult struct {
	Field    string         `json:"field"`
	N        int            `json:"n"`
	Items    []TopCountItem `json:"items"`
	SQL      string         `json:"sql"`
	Metadata QueryMetadata  `json:"metadata"`
}

type TopCountItem struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}
