package sqlgen_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/eventanalytics/db/bigquery"
	"hermannm.dev/eventanalytics/db/clickhouse"
	"hermannm.dev/eventanalytics/db/sqlgen"
)

const injection = "x'); DROP TABLE events; --"

var (
	dialects = []sqlgen.Dialect{bigquery.Dialect{}, clickhouse.Dialect{}}

	testFilter = db.Filter{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC),
	}

	injectedFilter = db.Filter{
		Start: testFilter.Start,
		End:   testFilter.End,
		Conditions: []db.Condition{
			{Column: "Actor1Name", Operator: db.OperatorEquals, Values: []string{injection}},
			{Column: "EventRootCode", Operator: db.OperatorIn, Values: []string{"14", injection}},
		},
	}
)

func eventsTable(t *testing.T) db.Table {
	t.Helper()

	table, err := db.NewTable(db.ScopeEvents, "gdelt-bq.gdeltv2.events_partitioned", db.DefaultTimeColumn)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

func gkgTable(t *testing.T) db.Table {
	t.Helper()

	table, err := db.NewTable(db.ScopeGKG, "gdelt-bq.gdeltv2.gkg_partitioned", db.DefaultTimeColumn)
	if err != nil {
		t.Fatal(err)
	}
	return table
}

type builderCase struct {
	name  string
	build func(sqlgen.Dialect, db.Table) (db.GeneratedQuery, error)
	// Set for builders on the GKG table.
	gkg bool
}

// validBuilders returns one valid request per query shape, all using the given filter.
func validBuilders(filter db.Filter) []builderCase {
	return []builderCase{
		{
			name: "time series",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTimeSeriesQuery(dialect, table, db.TimeSeriesRequest{
					Filter:      filter,
					Interval:    db.DateIntervalDay,
					Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "AvgTone"},
				})
			},
		},
		{
			name: "time series with moving average",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTimeSeriesQuery(dialect, table, db.TimeSeriesRequest{
					Filter:              filter,
					Interval:            db.DateIntervalDay,
					Aggregation:         db.Aggregation{Kind: db.AggregationCount},
					MovingAverageWindow: 7,
				})
			},
		},
		{
			name: "extremes",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildExtremesQuery(dialect, table, db.ExtremesRequest{
					Filter:       filter,
					Criterion:    "GoldsteinScale",
					MostNegative: 3,
					MostPositive: 2,
				})
			},
		},
		{
			name: "comparison",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildComparisonQuery(dialect, table, db.ComparisonRequest{
					Filter:      filter,
					Column:      "Actor1CountryCode",
					Values:      []string{"USA", "CHN", injection},
					Interval:    db.DateIntervalWeek,
					Aggregation: db.Aggregation{Kind: db.AggregationSum, Column: "NumMentions"},
				})
			},
		},
		{
			name: "trend",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTrendQuery(dialect, table, db.TrendRequest{
					Filter:      filter,
					Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "AvgTone"},
				})
			},
		},
		{
			name: "dyad",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildDyadQuery(dialect, table, db.DyadRequest{
					Filter:      filter,
					ActorField:  db.ActorFieldName,
					ActorA:      injection,
					ActorB:      "RUSSIA",
					Interval:    db.DateIntervalMonth,
					Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "GoldsteinScale"},
				})
			},
		},
		{
			name: "top n per group",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopNPerGroupQuery(dialect, table, db.TopNPerGroupRequest{
					Filter:          filter,
					PartitionColumn: "Actor1CountryCode",
					OrderColumn:     "NumMentions",
					SortOrder:       db.SortOrderDescending,
					N:               5,
					Columns:         []string{"GLOBALEVENTID", "SOURCEURL"},
				})
			},
		},
		{
			name: "top count",
			gkg:  true,
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopCountQuery(dialect, table, db.TopCountRequest{
					Filter: db.Filter{Start: filter.Start, End: filter.End},
					Field:  "V2Themes",
					N:      25,
				})
			},
		},
	}
}

func TestUserValuesAreOnlyBoundAsParameters(t *testing.T) {
	for _, dialect := range dialects {
		for _, builder := range validBuilders(injectedFilter) {
			t.Run(dialect.Name()+"/"+builder.name, func(t *testing.T) {
				table := eventsTable(t)
				if builder.gkg {
					table = gkgTable(t)
				}

				query, err := builder.build(dialect, table)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				if strings.Contains(query.SQL, "DROP TABLE") || strings.Contains(query.SQL, "USA") {
					t.Errorf("user value was written into SQL:\n%s", query.SQL)
				}

				for _, param := range query.Parameters {
					placeholder := "@" + param.Name
					if !strings.Contains(query.SQL, placeholder) {
						t.Errorf("parameter %s is not referenced in SQL:\n%s", placeholder, query.SQL)
					}
				}
			})
		}
	}
}

func TestEveryQueryBoundsTimeRange(t *testing.T) {
	for _, dialect := range dialects {
		for _, builder := range validBuilders(testFilter) {
			t.Run(dialect.Name()+"/"+builder.name, func(t *testing.T) {
				table := eventsTable(t)
				if builder.gkg {
					table = gkgTable(t)
				}

				query, err := builder.build(dialect, table)
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}

				for _, predicate := range []string{
					"`_PARTITIONTIME` >= @start_time",
					"`_PARTITIONTIME` < @end_time",
				} {
					if !strings.Contains(query.SQL, predicate) {
						t.Errorf("expected SQL to contain '%s':\n%s", predicate, query.SQL)
					}
				}

				params := parameterMap(query)
				start, _ := params["start_time"].(time.Time)
				end, _ := params["end_time"].(time.Time)
				if !start.Equal(testFilter.Start) || !end.Equal(testFilter.End) {
					t.Errorf("unexpected time range parameters: %v", query.Parameters)
				}
			})
		}
	}
}

func TestMissingTimeRangeIsRejected(t *testing.T) {
	for _, builder := range validBuilders(db.Filter{Start: testFilter.Start}) {
		t.Run(builder.name, func(t *testing.T) {
			table := eventsTable(t)
			if builder.gkg {
				table = gkgTable(t)
			}

			query, err := builder.build(bigquery.Dialect{}, table)
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func TestUnknownIdentifiersAreRejected(t *testing.T) {
	const unknown = "AvgTone`; DROP TABLE events; --"

	cases := []struct {
		name  string
		build func(sqlgen.Dialect, db.Table) (db.GeneratedQuery, error)
	}{
		{
			name: "filter column",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTimeSeriesQuery(dialect, table, db.TimeSeriesRequest{
					Filter: db.Filter{
						Start: testFilter.Start,
						End:   testFilter.End,
						Conditions: []db.Condition{
							{Column: unknown, Operator: db.OperatorEquals, Values: []string{"1"}},
						},
					},
					Interval:    db.DateIntervalDay,
					Aggregation: db.Aggregation{Kind: db.AggregationCount},
				})
			},
		},
		{
			name: "aggregation column",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTrendQuery(dialect, table, db.TrendRequest{
					Filter:      testFilter,
					Aggregation: db.Aggregation{Kind: db.AggregationSum, Column: unknown},
				})
			},
		},
		{
			name: "extremes criterion",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildExtremesQuery(dialect, table, db.ExtremesRequest{
					Filter:       testFilter,
					Criterion:    unknown,
					MostNegative: 1,
				})
			},
		},
		{
			name: "extremes projection",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildExtremesQuery(dialect, table, db.ExtremesRequest{
					Filter:       testFilter,
					Criterion:    "AvgTone",
					MostNegative: 1,
					Columns:      []string{"SOURCEURL", unknown},
				})
			},
		},
		{
			name: "comparison column",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildComparisonQuery(dialect, table, db.ComparisonRequest{
					Filter:      testFilter,
					Column:      unknown,
					Values:      []string{"A", "B"},
					Interval:    db.DateIntervalDay,
					Aggregation: db.Aggregation{Kind: db.AggregationCount},
				})
			},
		},
		{
			name: "partition column",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopNPerGroupQuery(dialect, table, db.TopNPerGroupRequest{
					Filter:          testFilter,
					PartitionColumn: unknown,
					OrderColumn:     "NumMentions",
					SortOrder:       db.SortOrderAscending,
					N:               1,
				})
			},
		},
		{
			name: "order column",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopNPerGroupQuery(dialect, table, db.TopNPerGroupRequest{
					Filter:          testFilter,
					PartitionColumn: "Actor1CountryCode",
					OrderColumn:     unknown,
					SortOrder:       db.SortOrderAscending,
					N:               1,
				})
			},
		},
		{
			name: "tag field",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopCountQuery(dialect, table, db.TopCountRequest{
					Filter: testFilter,
					Field:  unknown,
					N:      10,
				})
			},
		},
		{
			name: "column that is not a tag field",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopCountQuery(dialect, table, db.TopCountRequest{
					Filter: testFilter,
					Field:  "SOURCEURL",
					N:      10,
				})
			},
		},
		{
			name: "column from another table",
			build: func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
				return sqlgen.BuildTopNPerGroupQuery(dialect, table, db.TopNPerGroupRequest{
					Filter:          testFilter,
					PartitionColumn: "V2Themes",
					OrderColumn:     "NumMentions",
					SortOrder:       db.SortOrderAscending,
					N:               1,
				})
			},
		},
	}

	for _, dialect := range dialects {
		for _, testCase := range cases {
			t.Run(dialect.Name()+"/"+testCase.name, func(t *testing.T) {
				query, err := testCase.build(dialect, eventsTable(t))

				var identifierErr *db.IdentifierError
				if !errors.As(err, &identifierErr) {
					t.Fatalf("expected IdentifierError, got %v", err)
				}
				assertNoSQL(t, query)
			})
		}
	}
}

func TestTimeSeriesWithoutWindow(t *testing.T) {
	query, err := sqlgen.BuildTimeSeriesQuery(bigquery.Dialect{}, eventsTable(t), db.TimeSeriesRequest{
		Filter:      testFilter,
		Interval:    db.DateIntervalWeek,
		Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "AvgTone"},
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := "SELECT DATE_TRUNC(DATE(`_PARTITIONTIME`), WEEK) AS bucket, COUNT(*) AS event_count, " +
		"AVG(`AvgTone`) AS value FROM `gdelt-bq.gdeltv2.events_partitioned` " +
		"WHERE `_PARTITIONTIME` >= @start_time AND `_PARTITIONTIME` < @end_time " +
		"GROUP BY bucket ORDER BY bucket"
	if query.SQL != expected {
		t.Errorf("unexpected SQL\nexpected: %s\ngot:      %s", expected, query.SQL)
	}
	if strings.Contains(query.SQL, "moving_average") {
		t.Error("moving average must only be projected when a window is given")
	}
}

func TestTimeSeriesWindowUsesCalendarSpine(t *testing.T) {
	cases := []struct {
		kind       db.AggregationKind
		column     string
		fillsValue bool
	}{
		{db.AggregationCount, "", true},
		{db.AggregationSum, "NumMentions", true},
		{db.AggregationAverage, "AvgTone", false},
	}

	for _, testCase := range cases {
		t.Run(testCase.kind.String(), func(t *testing.T) {
			query, err := sqlgen.BuildTimeSeriesQuery(
				bigquery.Dialect{},
				eventsTable(t),
				db.TimeSeriesRequest{
					Filter:              testFilter,
					Interval:            db.DateIntervalDay,
					Aggregation:         db.Aggregation{Kind: testCase.kind, Column: testCase.column},
					MovingAverageWindow: 3,
				},
			)
			if err != nil {
				t.Fatal(err)
			}

			for _, fragment := range []string{
				"WITH spine AS (SELECT bucket FROM UNNEST(GENERATE_DATE_ARRAY(" +
					"CAST(@spine_start AS DATE), CAST(@spine_end AS DATE), INTERVAL 1 DAY)) AS bucket)",
				"FROM spine LEFT JOIN aggregated ON spine.bucket = aggregated.bucket",
				"COALESCE(aggregated.event_count, 0) AS event_count",
				"ROWS BETWEEN 2 PRECEDING AND CURRENT ROW) AS moving_average",
			} {
				if !strings.Contains(query.SQL, fragment) {
					t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
				}
			}

			zeroFilled := strings.Contains(query.SQL, "COALESCE(aggregated.value, 0)")
			if zeroFilled != testCase.fillsValue {
				t.Errorf(
					"expected zero filling of missing buckets to be %v, got %v:\n%s",
					testCase.fillsValue,
					zeroFilled,
					query.SQL,
				)
			}

			params := parameterMap(query)
			// The filter's end is exclusive, so the last day in range is January 7th.
			if params["spine_start"] != "2024-01-01" || params["spine_end"] != "2024-01-07" {
				t.Errorf(
					"unexpected spine bounds %v to %v",
					params["spine_start"],
					params["spine_end"],
				)
			}
		})
	}
}

func TestTimeSeriesSpineMatchesInterval(t *testing.T) {
	filter := db.Filter{
		Start: time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		interval   db.DateInterval
		spineStart string
		spineEnd   string
		spineUnit  string
	}{
		{db.DateIntervalMonth, "2024-02-01", "2024-07-01", "INTERVAL 1 MONTH"},
		{db.DateIntervalQuarter, "2024-01-01", "2024-07-01", "INTERVAL 1 QUARTER"},
		// February 11th 2024 and July 28th 2024 are Sundays.
		{db.DateIntervalWeek, "2024-02-11", "2024-07-28", "INTERVAL 1 WEEK"},
	}

	for _, testCase := range cases {
		t.Run(testCase.interval.String(), func(t *testing.T) {
			query, err := sqlgen.BuildTimeSeriesQuery(
				bigquery.Dialect{},
				eventsTable(t),
				db.TimeSeriesRequest{
					Filter:              filter,
					Interval:            testCase.interval,
					Aggregation:         db.Aggregation{Kind: db.AggregationCount},
					MovingAverageWindow: 2,
				},
			)
			if err != nil {
				t.Fatal(err)
			}

			if !strings.Contains(query.SQL, testCase.spineUnit) {
				t.Errorf("expected spine with '%s':\n%s", testCase.spineUnit, query.SQL)
			}

			params := parameterMap(query)
			if params["spine_start"] != testCase.spineStart || params["spine_end"] != testCase.spineEnd {
				t.Errorf(
					"expected spine from %s to %s, got %v to %v",
					testCase.spineStart,
					testCase.spineEnd,
					params["spine_start"],
					params["spine_end"],
				)
			}
		})
	}
}

func TestClickHouseTimeSeriesWindow(t *testing.T) {
	query, err := sqlgen.BuildTimeSeriesQuery(clickhouse.Dialect{}, eventsTable(t), db.TimeSeriesRequest{
		Filter:              testFilter,
		Interval:            db.DateIntervalWeek,
		Aggregation:         db.Aggregation{Kind: db.AggregationAverage, Column: "AvgTone"},
		MovingAverageWindow: 4,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, fragment := range []string{
		"arrayJoin(arrayMap(i -> addWeeks(toDate(@spine_start), i)",
		"toStartOfWeek(toTimeZone(`_PARTITIONTIME`, 'UTC')) AS bucket",
		"ROWS BETWEEN 3 PRECEDING AND CURRENT ROW",
		"FROM `gdelt-bq`.`gdeltv2`.`events_partitioned`",
	} {
		if !strings.Contains(query.SQL, fragment) {
			t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
		}
	}

	if !strings.HasSuffix(query.SQL, " SETTINGS join_use_nulls = 1") {
		t.Errorf("expected join_use_nulls setting, so missing buckets read NULL:\n%s", query.SQL)
	}
}

func TestTimeSeriesValidation(t *testing.T) {
	cases := []struct {
		name    string
		request db.TimeSeriesRequest
	}{
		{
			"window of 1",
			db.TimeSeriesRequest{
				Filter:              testFilter,
				Interval:            db.DateIntervalDay,
				Aggregation:         db.Aggregation{Kind: db.AggregationCount},
				MovingAverageWindow: 1,
			},
		},
		{
			"negative window",
			db.TimeSeriesRequest{
				Filter:              testFilter,
				Interval:            db.DateIntervalDay,
				Aggregation:         db.Aggregation{Kind: db.AggregationCount},
				MovingAverageWindow: -3,
			},
		},
		{
			"window too large",
			db.TimeSeriesRequest{
				Filter:              testFilter,
				Interval:            db.DateIntervalDay,
				Aggregation:         db.Aggregation{Kind: db.AggregationCount},
				MovingAverageWindow: sqlgen.MaxMovingAverageWindow + 1,
			},
		},
		{
			"invalid interval",
			db.TimeSeriesRequest{
				Filter:      testFilter,
				Aggregation: db.Aggregation{Kind: db.AggregationCount},
			},
		},
		{
			"average of text column",
			db.TimeSeriesRequest{
				Filter:      testFilter,
				Interval:    db.DateIntervalDay,
				Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "Actor1Name"},
			},
		},
		{
			"start after end",
			db.TimeSeriesRequest{
				Filter:      db.Filter{Start: testFilter.End, End: testFilter.Start},
				Interval:    db.DateIntervalDay,
				Aggregation: db.Aggregation{Kind: db.AggregationCount},
			},
		},
		{
			"invalid filter value",
			db.TimeSeriesRequest{
				Filter: db.Filter{
					Start: testFilter.Start,
					End:   testFilter.End,
					Conditions: []db.Condition{
						{Column: "QuadClass", Operator: db.OperatorEquals, Values: []string{"four"}},
					},
				},
				Interval:    db.DateIntervalDay,
				Aggregation: db.Aggregation{Kind: db.AggregationCount},
			},
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			query, err := sqlgen.BuildTimeSeriesQuery(bigquery.Dialect{}, eventsTable(t), testCase.request)
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func TestExtremes(t *testing.T) {
	query, err := sqlgen.BuildExtremesQuery(bigquery.Dialect{}, eventsTable(t), db.ExtremesRequest{
		Filter:       testFilter,
		Criterion:    "GoldsteinScale",
		MostNegative: 3,
		MostPositive: 2,
		Columns:      []string{"GLOBALEVENTID"},
	})
	if err != nil {
		t.Fatal(err)
	}

	expected := "SELECT `GLOBALEVENTID`, `GoldsteinScale` AS criterion_value, " +
		"ROW_NUMBER() OVER (ORDER BY `GoldsteinScale` ASC) AS rank_asc, " +
		"ROW_NUMBER() OVER (ORDER BY `GoldsteinScale` DESC) AS rank_desc " +
		"FROM `gdelt-bq.gdeltv2.events_partitioned` " +
		"WHERE `_PARTITIONTIME` >= @start_time AND `_PARTITIONTIME` < @end_time " +
		"AND `GoldsteinScale` IS NOT NULL " +
		"QUALIFY rank_asc <= @most_negative OR rank_desc <= @most_positive ORDER BY rank_asc"
	if query.SQL != expected {
		t.Errorf("unexpected SQL\nexpected: %s\ngot:      %s", expected, query.SQL)
	}

	params := parameterMap(query)
	if params["most_negative"] != int64(3) || params["most_positive"] != int64(2) {
		t.Errorf("unexpected rank limit parameters: %v", query.Parameters)
	}
}

func TestExtremesValidation(t *testing.T) {
	cases := []struct {
		name         string
		mostNegative int
		mostPositive int
		criterion    string
		columns      []string
	}{
		{"both zero", 0, 0, "GoldsteinScale", nil},
		{"negative limit", -1, 2, "GoldsteinScale", nil},
		{"limit too large", 2, sqlgen.MaxExtremes + 1, "GoldsteinScale", nil},
		{"text criterion", 1, 1, "Actor1Name", nil},
		{"duplicate column", 1, 1, "GoldsteinScale", []string{"SOURCEURL", "SOURCEURL"}},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			query, err := sqlgen.BuildExtremesQuery(bigquery.Dialect{}, eventsTable(t), db.ExtremesRequest{
				Filter:       testFilter,
				Criterion:    testCase.criterion,
				MostNegative: testCase.mostNegative,
				MostPositive: testCase.mostPositive,
				Columns:      testCase.columns,
			})
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func TestComparisonPivotsValuesInOneScan(t *testing.T) {
	values := []string{"USA", "CHN", "RUS"}

	query, err := sqlgen.BuildComparisonQuery(bigquery.Dialect{}, eventsTable(t), db.ComparisonRequest{
		Filter:      testFilter,
		Column:      "Actor1CountryCode",
		Values:      values,
		Interval:    db.DateIntervalMonth,
		Aggregation: db.Aggregation{Kind: db.AggregationAverage, Column: "AvgTone"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if count := strings.Count(query.SQL, "SELECT"); count != 1 {
		t.Errorf("expected a single SELECT without sub-queries, got %d:\n%s", count, query.SQL)
	}

	params := parameterMap(query)
	for i, value := range values {
		for _, fragment := range []string{
			fmt.Sprintf("AVG(IF(`Actor1CountryCode` = @compare_value_%d, `AvgTone`, NULL)) AS value_%d", i, i),
			fmt.Sprintf("COUNTIF(`Actor1CountryCode` = @compare_value_%d) AS count_%d", i, i),
		} {
			if !strings.Contains(query.SQL, fragment) {
				t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
			}
		}

		if param := params[fmt.Sprintf("compare_value_%d", i)]; param != value {
			t.Errorf("expected compare_value_%d to be bound to %s, got %v", i, value, param)
		}
	}

	if !strings.Contains(query.SQL, "`Actor1CountryCode` IN UNNEST(@compare_values)") {
		t.Errorf("expected scan to be restricted to the compared values:\n%s", query.SQL)
	}
}

func TestComparisonValidation(t *testing.T) {
	cases := []struct {
		name   string
		column string
		values []string
	}{
		{"duplicate value", "Actor1CountryCode", []string{"USA", "CHN", "USA"}},
		{"duplicate after conversion", "QuadClass", []string{"1", "01"}},
		{"single value", "Actor1CountryCode", []string{"USA"}},
		{
			"too many values",
			"Actor1CountryCode",
			[]string{"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K"},
		},
		{"unconvertible value", "QuadClass", []string{"1", "two"}},
	}

	for _, dialect := range dialects {
		for _, testCase := range cases {
			t.Run(dialect.Name()+"/"+testCase.name, func(t *testing.T) {
				query, err := sqlgen.BuildComparisonQuery(dialect, eventsTable(t), db.ComparisonRequest{
					Filter:      testFilter,
					Column:      testCase.column,
					Values:      testCase.values,
					Interval:    db.DateIntervalDay,
					Aggregation: db.Aggregation{Kind: db.AggregationCount},
				})
				assertValidationError(t, err)
				assertNoSQL(t, query)
			})
		}
	}
}

func TestTrendGuardsZeroVariance(t *testing.T) {
	cases := []struct {
		dialect   sqlgen.Dialect
		fragments []string
	}{
		{
			bigquery.Dialect{},
			[]string{
				"IF(STDDEV_SAMP(value) = 0, 0, CORR(bucket_index, value)) AS correlation",
				"SAFE_DIVIDE(IF(STDDEV_SAMP(value) = 0, 0, CORR(bucket_index, value)) * " +
					"STDDEV_SAMP(value), STDDEV_SAMP(bucket_index)) AS slope",
				"ROW_NUMBER() OVER (ORDER BY bucket) AS bucket_index",
				"DATE(`_PARTITIONTIME`) AS bucket",
			},
		},
		{
			clickhouse.Dialect{},
			[]string{
				"if(stddevSamp(toFloat64(value)) = 0, 0, " +
					"corr(toFloat64(bucket_index), toFloat64(value))) AS correlation",
				"if(stddevSamp(toFloat64(bucket_index)) = 0, NULL, ",
				"row_number() OVER (ORDER BY bucket) AS bucket_index",
				"toDate(toTimeZone(`_PARTITIONTIME`, 'UTC')) AS bucket",
			},
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.dialect.Name(), func(t *testing.T) {
			query, err := sqlgen.BuildTrendQuery(testCase.dialect, eventsTable(t), db.TrendRequest{
				Filter:      testFilter,
				Aggregation: db.Aggregation{Kind: db.AggregationCount},
			})
			if err != nil {
				t.Fatal(err)
			}

			for _, fragment := range testCase.fragments {
				if !strings.Contains(query.SQL, fragment) {
					t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
				}
			}
		})
	}
}

func TestDyadUsesOrderedActorPairs(t *testing.T) {
	query, err := sqlgen.BuildDyadQuery(bigquery.Dialect{}, eventsTable(t), db.DyadRequest{
		Filter:      testFilter,
		ActorField:  db.ActorFieldCountryCode,
		ActorA:      "USA",
		ActorB:      "CHN",
		Interval:    db.DateIntervalWeek,
		Aggregation: db.Aggregation{Kind: db.AggregationCount},
	})
	if err != nil {
		t.Fatal(err)
	}

	aToB := "(`Actor1CountryCode` = @actor_a AND `Actor2CountryCode` = @actor_b)"
	bToA := "(`Actor1CountryCode` = @actor_b AND `Actor2CountryCode` = @actor_a)"
	for _, fragment := range []string{
		"COUNTIF(" + aToB + ") AS a_to_b_count",
		"COUNTIF(" + bToA + ") AS b_to_a_count",
		"AND (" + aToB + " OR " + bToA + ") GROUP BY bucket",
	} {
		if !strings.Contains(query.SQL, fragment) {
			t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
		}
	}

	if count := strings.Count(query.SQL, "SELECT"); count != 1 {
		t.Errorf("expected both directions from a single scan, got %d SELECTs", count)
	}
}

func TestDyadValidation(t *testing.T) {
	cases := []struct {
		name    string
		request db.DyadRequest
	}{
		{"same actor", db.DyadRequest{ActorA: "USA", ActorB: "USA"}},
		{"missing actor", db.DyadRequest{ActorA: "USA"}},
		{"invalid actor field", db.DyadRequest{ActorField: 42, ActorA: "USA", ActorB: "CHN"}},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			request := testCase.request
			request.Filter = testFilter
			request.Interval = db.DateIntervalDay
			request.Aggregation = db.Aggregation{Kind: db.AggregationCount}
			if request.ActorField == 0 {
				request.ActorField = db.ActorFieldCountryCode
			}

			query, err := sqlgen.BuildDyadQuery(bigquery.Dialect{}, eventsTable(t), request)
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func TestTopNPerGroup(t *testing.T) {
	query, err := sqlgen.BuildTopNPerGroupQuery(clickhouse.Dialect{}, eventsTable(t), db.TopNPerGroupRequest{
		Filter:          testFilter,
		PartitionColumn: "Actor1CountryCode",
		OrderColumn:     "NumMentions",
		SortOrder:       db.SortOrderDescending,
		N:               5,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, fragment := range []string{
		"row_number() OVER (PARTITION BY `Actor1CountryCode` ORDER BY `NumMentions` DESC) AS group_rank",
		"QUALIFY group_rank <= @top_n",
	} {
		if !strings.Contains(query.SQL, fragment) {
			t.Errorf("expected SQL to contain '%s':\n%s", fragment, query.SQL)
		}
	}

	if n := parameterMap(query)["top_n"]; n != int64(5) {
		t.Errorf("expected top_n to be bound to 5, got %v", n)
	}
}

func TestTopNPerGroupValidation(t *testing.T) {
	for _, testCase := range []struct {
		name      string
		n         int
		sortOrder db.SortOrder
	}{
		{"zero", 0, db.SortOrderAscending},
		{"too large", sqlgen.MaxTopNPerGroup + 1, db.SortOrderAscending},
		{"invalid sort order", 10, 0},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			query, err := sqlgen.BuildTopNPerGroupQuery(bigquery.Dialect{}, eventsTable(t), db.TopNPerGroupRequest{
				Filter:          testFilter,
				PartitionColumn: "Actor1CountryCode",
				OrderColumn:     "NumMentions",
				SortOrder:       testCase.sortOrder,
				N:               testCase.n,
			})
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func TestTopCountEmbedsValidatedSize(t *testing.T) {
	cases := []struct {
		dialect  sqlgen.Dialect
		expected string
	}{
		{
			bigquery.Dialect{},
			"WITH tags AS (SELECT SPLIT(raw_tag, @offset_delimiter)[SAFE_OFFSET(0)] AS tag " +
				"FROM `gdelt-bq.gdeltv2.gkg_partitioned` " +
				"CROSS JOIN UNNEST(SPLIT(`V2Themes`, @tag_delimiter)) AS raw_tag " +
				"WHERE `_PARTITIONTIME` >= @start_time AND `_PARTITIONTIME` < @end_time) " +
				"SELECT item.value AS tag_value, item.count AS tag_count " +
				"FROM UNNEST((SELECT APPROX_TOP_COUNT(tag, 25) " +
				"FROM tags WHERE tag IS NOT NULL AND tag != '')) AS item ORDER BY tag_count DESC",
		},
		{
			clickhouse.Dialect{},
			"WITH tags AS (SELECT arrayElement(splitByString(@offset_delimiter, raw_tag), 1) AS tag " +
				"FROM `gdelt-bq`.`gdeltv2`.`gkg_partitioned` " +
				"ARRAY JOIN splitByString(@tag_delimiter, `V2Themes`) AS raw_tag " +
				"WHERE `_PARTITIONTIME` >= @start_time AND `_PARTITIONTIME` < @end_time) " +
				"SELECT tupleElement(item, 1) AS tag_value, tupleElement(item, 2) AS tag_count " +
				"FROM (SELECT arrayJoin(approx_top_count(25)(tag)) AS item " +
				"FROM tags WHERE tag IS NOT NULL AND tag != '') ORDER BY tag_count DESC " +
				"SETTINGS join_use_nulls = 1",
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.dialect.Name(), func(t *testing.T) {
			query, err := sqlgen.BuildTopCountQuery(testCase.dialect, gkgTable(t), db.TopCountRequest{
				Filter: testFilter,
				Field:  "V2Themes",
				N:      25,
			})
			if err != nil {
				t.Fatal(err)
			}

			if query.SQL != testCase.expected {
				t.Errorf("unexpected SQL\nexpected: %s\ngot:      %s", testCase.expected, query.SQL)
			}

			params := parameterMap(query)
			if params["tag_delimiter"] != ";" || params["offset_delimiter"] != "," {
				t.Errorf("unexpected delimiter parameters: %v", query.Parameters)
			}
		})
	}
}

func TestTopCountWithoutOffsets(t *testing.T) {
	query, err := sqlgen.BuildTopCountQuery(bigquery.Dialect{}, gkgTable(t), db.TopCountRequest{
		Filter: testFilter,
		Field:  "Themes",
		N:      10,
	})
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(query.SQL, "WITH tags AS (SELECT raw_tag AS tag FROM") {
		t.Errorf("expected entries to be used as-is:\n%s", query.SQL)
	}
	if _, ok := parameterMap(query)["offset_delimiter"]; ok {
		t.Error("expected no offset delimiter parameter")
	}
}

func TestTopCountSizeIsRangeChecked(t *testing.T) {
	for _, n := range []int{0, -5, 1001, 2000} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			query, err := sqlgen.BuildTopCountQuery(bigquery.Dialect{}, gkgTable(t), db.TopCountRequest{
				Filter: testFilter,
				Field:  "V2Themes",
				N:      n,
			})
			assertValidationError(t, err)
			assertNoSQL(t, query)
		})
	}
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()

	var validationErr *db.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func assertNoSQL(t *testing.T, query db.GeneratedQuery) {
	t.Helper()

	if query.SQL != "" || len(query.Parameters) != 0 {
		t.Errorf("expected no query to be produced, got %+v", query)
	}
}

func parameterMap(query db.GeneratedQuery) map[string]any {
	params := make(map[string]any, len(query.Parameters))
	for _, param := range query.Parameters {
		params[param.Name] = param.Value
	}
	return params
}
