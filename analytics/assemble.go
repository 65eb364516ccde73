package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat/distuv"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/wrap"
)

func assembleTimeSeries(
	rows []db.Row,
	request db.TimeSeriesRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.TimeSeriesResult, error) {
	result := db.TimeSeriesResult{
		Interval:            request.Interval,
		Aggregation:         request.Aggregation,
		MovingAverageWindow: request.MovingAverageWindow,
		Buckets:             make([]db.TimeSeriesBucket, 0, len(rows)),
		SQL:                 sql,
		Metadata:            metadata,
	}

	for i, row := range rows {
		var bucket db.TimeSeriesBucket
		var err error

		if bucket.Bucket, err = rowTime(row, "bucket"); err != nil {
			return db.TimeSeriesResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		if bucket.EventCount, err = rowInt(row, "event_count"); err != nil {
			return db.TimeSeriesResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		value, err := rowFloat(row, "value")
		if err != nil {
			return db.TimeSeriesResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		bucket.Value = filledValue(value, request.Aggregation)

		if request.MovingAverageWindow != 0 {
			if bucket.MovingAverage, err = rowFloat(row, "moving_average"); err != nil {
				return db.TimeSeriesResult{}, wrap.Errorf(err, "invalid row %d", i)
			}
		}

		result.Buckets = append(result.Buckets, bucket)
	}

	return result, nil
}

// assembleExtremes splits the dual-ranked rows into the two groups. A row within both rank limits
// (possible when the table has fewer rows than the two limits combined) goes to the negative group
// only, so the groups never overlap.
func assembleExtremes(
	rows []db.Row,
	request db.ExtremesRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.ExtremeEventsResult, error) {
	result := db.ExtremeEventsResult{
		Criterion:    request.Criterion,
		MostNegative: []db.RankedEvent{},
		MostPositive: []db.RankedEvent{},
		SQL:          sql,
		Metadata:     metadata,
	}

	for i, row := range rows {
		rankAsc, err := rowInt(row, "rank_asc")
		if err != nil {
			return db.ExtremeEventsResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		rankDesc, err := rowInt(row, "rank_desc")
		if err != nil {
			return db.ExtremeEventsResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		value, err := rowFloatOrZero(row, "criterion_value")
		if err != nil {
			return db.ExtremeEventsResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		fields := otherFields(row, "criterion_value", "rank_asc", "rank_desc")

		switch {
		case rankAsc <= int64(request.MostNegative):
			result.MostNegative = append(
				result.MostNegative,
				db.RankedEvent{Rank: rankAsc, Value: value, Fields: fields},
			)
		case rankDesc <= int64(request.MostPositive):
			result.MostPositive = append(
				result.MostPositive,
				db.RankedEvent{Rank: rankDesc, Value: value, Fields: fields},
			)
		}
	}

	sortByRank(result.MostNegative)
	sortByRank(result.MostPositive)
	return result, nil
}

func sortByRank(events []db.RankedEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Rank < events[j].Rank
	})
}

func assembleComparison(
	rows []db.Row,
	request db.ComparisonRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.ComparisonResult, error) {
	result := db.ComparisonResult{
		Column:      request.Column,
		Values:      request.Values,
		Interval:    request.Interval,
		Aggregation: request.Aggregation,
		Rows:        make([]db.ComparisonRow, 0, len(rows)),
		SQL:         sql,
		Metadata:    metadata,
	}

	for i, row := range rows {
		bucket, err := rowTime(row, "bucket")
		if err != nil {
			return db.ComparisonResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		comparisonRow := db.ComparisonRow{
			Bucket:   bucket,
			Entities: make([]db.ComparisonEntry, 0, len(request.Values)),
		}

		for valueIndex, value := range request.Values {
			aggregate, err := rowFloat(row, fmt.Sprintf("value_%d", valueIndex))
			if err != nil {
				return db.ComparisonResult{}, wrap.Errorf(err, "invalid row %d", i)
			}
			count, err := rowInt(row, fmt.Sprintf("count_%d", valueIndex))
			if err != nil {
				return db.ComparisonResult{}, wrap.Errorf(err, "invalid row %d", i)
			}

			comparisonRow.Entities = append(comparisonRow.Entities, db.ComparisonEntry{
				Value:     value,
				Aggregate: filledValue(aggregate, request.Aggregation),
				Count:     count,
			})
		}

		result.Rows = append(result.Rows, comparisonRow)
	}

	return result, nil
}

const minTrendDataPoints = 2

// assembleTrend derives the coefficient of determination and significance of the fitted line from
// the correlation. The p-value is two-sided, from the t-statistic r*sqrt((n-2)/(1-r²)) under a
// Student's t distribution with n-2 degrees of freedom.
func assembleTrend(
	rows []db.Row,
	request db.TrendRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.TrendResult, error) {
	var row db.Row
	if len(rows) > 0 {
		row = rows[0]
	}

	dataPoints, err := rowInt(row, "data_points")
	if err != nil {
		return db.TrendResult{}, err
	}
	if dataPoints < minTrendDataPoints {
		return db.TrendResult{}, &db.InsufficientDataError{
			DataPoints: int(dataPoints),
			Required:   minTrendDataPoints,
		}
	}

	result := db.TrendResult{
		Aggregation: request.Aggregation,
		DataPoints:  int(dataPoints),
		SQL:         sql,
		Metadata:    metadata,
	}

	if result.FirstBucket, err = rowTime(row, "first_bucket"); err != nil {
		return db.TrendResult{}, err
	}
	if result.LastBucket, err = rowTime(row, "last_bucket"); err != nil {
		return db.TrendResult{}, err
	}
	if result.MeanValue, err = rowFloatOrZero(row, "mean_value"); err != nil {
		return db.TrendResult{}, err
	}
	if result.Correlation, err = rowFloatOrZero(row, "correlation"); err != nil {
		return db.TrendResult{}, err
	}
	if result.Slope, err = rowFloatOrZero(row, "slope"); err != nil {
		return db.TrendResult{}, err
	}

	result.RSquared = result.Correlation * result.Correlation
	result.PValue = slopePValue(result.Correlation, result.DataPoints)

	switch {
	case result.Slope > 0:
		result.Direction = db.TrendIncreasing
	case result.Slope < 0:
		result.Direction = db.TrendDecreasing
	default:
		result.Direction = db.TrendFlat
	}

	return result, nil
}

// slopePValue returns nil when there are no degrees of freedom left for the test.
func slopePValue(correlation float64, dataPoints int) *float64 {
	degreesOfFreedom := dataPoints - 2
	if degreesOfFreedom < 1 {
		return nil
	}

	rSquared := correlation * correlation
	if rSquared >= 1 {
		pValue := 0.0
		return &pValue
	}

	t := math.Abs(correlation) * math.Sqrt(float64(degreesOfFreedom)/(1-rSquared))
	distribution := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(degreesOfFreedom)}

	pValue := 2 * distribution.Survival(t)
	return &pValue
}

// assembleDyad returns one point per bucket in each direction, so the two sequences are aligned.
func assembleDyad(
	rows []db.Row,
	request db.DyadRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.DyadResult, error) {
	result := db.DyadResult{
		ActorField:  request.ActorField,
		ActorA:      request.ActorA,
		ActorB:      request.ActorB,
		Interval:    request.Interval,
		Aggregation: request.Aggregation,
		AToB:        make([]db.DyadPoint, 0, len(rows)),
		BToA:        make([]db.DyadPoint, 0, len(rows)),
		SQL:         sql,
		Metadata:    metadata,
	}

	for i, row := range rows {
		bucket, err := rowTime(row, "bucket")
		if err != nil {
			return db.DyadResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		aToB, err := dyadPoint(row, bucket, "a_to_b", request.Aggregation)
		if err != nil {
			return db.DyadResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		bToA, err := dyadPoint(row, bucket, "b_to_a", request.Aggregation)
		if err != nil {
			return db.DyadResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		result.AToB = append(result.AToB, aToB)
		result.BToA = append(result.BToA, bToA)
	}

	return result, nil
}

func dyadPoint(
	row db.Row,
	bucket time.Time,
	prefix string,
	aggregation db.Aggregation,
) (db.DyadPoint, error) {
	count, err := rowInt(row, prefix+"_count")
	if err != nil {
		return db.DyadPoint{}, err
	}
	value, err := rowFloat(row, prefix+"_value")
	if err != nil {
		return db.DyadPoint{}, err
	}

	return db.DyadPoint{
		Bucket:     bucket,
		EventCount: count,
		Value:      filledValue(value, aggregation),
	}, nil
}

func assembleTopNPerGroup(
	rows []db.Row,
	request db.TopNPerGroupRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.PartitionedTopNResult, error) {
	result := db.PartitionedTopNResult{
		PartitionColumn: request.PartitionColumn,
		OrderColumn:     request.OrderColumn,
		SortOrder:       request.SortOrder,
		N:               request.N,
		Groups:          make(map[string][]db.RankedRow),
		SQL:             sql,
		Metadata:        metadata,
	}

	for i, row := range rows {
		rank, err := rowInt(row, "group_rank")
		if err != nil {
			return db.PartitionedTopNResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		group := partitionKey(row["partition_value"])
		result.Groups[group] = append(result.Groups[group], db.RankedRow{
			Rank:       rank,
			OrderValue: row["order_value"],
			Fields:     otherFields(row, "partition_value", "order_value", "group_rank"),
		})
	}

	for _, group := range result.Groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Rank < group[j].Rank
		})
	}

	return result, nil
}

// Rows with a NULL partition value form their own group, keyed by the empty string.
func partitionKey(value any) string {
	if value == nil {
		return ""
	}
	return fmt.Sprint(value)
}

func assembleTopCount(
	rows []db.Row,
	request db.TopCountRequest,
	sql string,
	metadata db.QueryMetadata,
) (db.TopCountResult, error) {
	result := db.TopCountResult{
		Field:    request.Field,
		N:        request.N,
		Items:    make([]db.TopCountItem, 0, len(rows)),
		SQL:      sql,
		Metadata: metadata,
	}

	for i, row := range rows {
		value, err := rowString(row, "tag_value")
		if err != nil {
			return db.TopCountResult{}, wrap.Errorf(err, "invalid row %d", i)
		}
		count, err := rowInt(row, "tag_count")
		if err != nil {
			return db.TopCountResult{}, wrap.Errorf(err, "invalid row %d", i)
		}

		result.Items = append(result.Items, db.TopCountItem{Value: value, Count: count})
	}

	sort.SliceStable(result.Items, func(i, j int) bool {
		return result.Items[i].Count > result.Items[j].Count
	})
	return result, nil
}
