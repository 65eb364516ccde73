// Package analytics runs analytical queries against a warehouse under a cost budget, and assembles
// the results into typed containers.
package analytics

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/eventanalytics/cost"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/eventanalytics/db/sqlgen"
	"hermannm.dev/wrap"
)

// Warehouse is the capability the client needs: executing generated SQL, in the warehouse's
// dialect. Warehouses that also implement db.Estimator support preflight budget checks.
type Warehouse interface {
	db.Executor
	Dialect() sqlgen.Dialect
}

type Options struct {
	// Estimate each query's bytes before running it, and refuse it if the estimate would exceed
	// the budget. Ignored if the warehouse does not implement db.Estimator.
	PreflightEstimate bool
	// If positive, passed to the warehouse as a per-query cap on bytes billed.
	MaxBytesBilled int64
}

// Client has one method per analytical query shape. Each method validates the request, builds the
// SQL, checks and records the cost with the tracker, and returns a typed result with the SQL and
// execution metadata.
type Client struct {
	warehouse Warehouse
	tables    map[db.TableScope]db.Table
	tracker   *cost.Tracker
	options   Options
}

// NewClient creates a client for the given warehouse and tables. A nil warehouse gives a client
// whose methods fail with db.ErrNoWarehouse. A nil tracker is replaced with one without a budget.
func NewClient(
	warehouse Warehouse,
	tables []db.Table,
	tracker *cost.Tracker,
	options Options,
) *Client {
	if tracker == nil {
		tracker = cost.NewTracker(0, nil)
	}

	tableMap := make(map[db.TableScope]db.Table, len(tables))
	for _, table := range tables {
		tableMap[table.Scope] = table
	}

	return &Client{warehouse: warehouse, tables: tableMap, tracker: tracker, options: options}
}

func (client *Client) Tracker() *cost.Tracker {
	return client.tracker
}

func (client *Client) TimeSeries(
	ctx context.Context,
	scope db.TableScope,
	request db.TimeSeriesRequest,
) (db.TimeSeriesResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildTimeSeriesQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.TimeSeriesResult, error) {
			return assembleTimeSeries(rows, request, sql, metadata)
		},
	)
}

func (client *Client) Extremes(
	ctx context.Context,
	scope db.TableScope,
	request db.ExtremesRequest,
) (db.ExtremeEventsResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildExtremesQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.ExtremeEventsResult, error) {
			return assembleExtremes(rows, request, sql, metadata)
		},
	)
}

func (client *Client) Compare(
	ctx context.Context,
	scope db.TableScope,
	request db.ComparisonRequest,
) (db.ComparisonResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildComparisonQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.ComparisonResult, error) {
			return assembleComparison(rows, request, sql, metadata)
		},
	)
}

func (client *Client) Trend(
	ctx context.Context,
	scope db.TableScope,
	request db.TrendRequest,
) (db.TrendResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildTrendQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.TrendResult, error) {
			return assembleTrend(rows, request, sql, metadata)
		},
	)
}

func (client *Client) Dyad(
	ctx context.Context,
	scope db.TableScope,
	request db.DyadRequest,
) (db.DyadResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildDyadQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.DyadResult, error) {
			return assembleDyad(rows, request, sql, metadata)
		},
	)
}

func (client *Client) TopNPerGroup(
	ctx context.Context,
	scope db.TableScope,
	request db.TopNPerGroupRequest,
) (db.PartitionedTopNResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildTopNPerGroupQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.PartitionedTopNResult, error) {
			return assembleTopNPerGroup(rows, request, sql, metadata)
		},
	)
}

func (client *Client) TopCount(
	ctx context.Context,
	scope db.TableScope,
	request db.TopCountRequest,
) (db.TopCountResult, error) {
	return runQuery(
		ctx,
		client,
		scope,
		func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error) {
			return sqlgen.BuildTopCountQuery(dialect, table, request)
		},
		func(rows []db.Row, sql string, metadata db.QueryMetadata) (db.TopCountResult, error) {
			return assembleTopCount(rows, request, sql, metadata)
		},
	)
}

// runQuery is the flow shared by all query shapes. Builder and tracker errors are returned as-is,
// so callers can match them with errors.As. Only completed queries are recorded with the tracker.
func runQuery[Result any](
	ctx context.Context,
	client *Client,
	scope db.TableScope,
	build func(dialect sqlgen.Dialect, table db.Table) (db.GeneratedQuery, error),
	assemble func(rows []db.Row, sql string, metadata db.QueryMetadata) (Result, error),
) (Result, error) {
	var empty Result

	if client.warehouse == nil {
		return empty, db.ErrNoWarehouse
	}

	table, ok := client.tables[scope]
	if !ok {
		return empty, &db.IdentifierError{Kind: "table", Name: scope.String()}
	}

	dialect := client.warehouse.Dialect()
	query, err := build(dialect, table)
	if err != nil {
		return empty, err
	}

	log.Debug(
		"generated query",
		slog.String("dialect", dialect.Name()),
		slog.String("query", query.SQL),
	)

	if client.options.PreflightEstimate {
		if estimator, ok := client.warehouse.(db.Estimator); ok {
			estimate, err := estimator.EstimateBytes(ctx, query)
			if err != nil {
				return empty, asWarehouseError(err)
			}
			if err := client.tracker.CheckBudget(estimate); err != nil {
				return empty, err
			}
		}
	}

	queryID := uuid.NewString()

	start := time.Now()
	result, err := client.warehouse.Execute(
		ctx,
		query,
		db.ExecuteOptions{QueryID: queryID, MaxBytesBilled: client.options.MaxBytesBilled},
	)
	elapsed := time.Since(start)
	if err != nil {
		return empty, asWarehouseError(err)
	}

	if err := client.tracker.Record(billedBytes(result)); err != nil {
		return empty, err
	}

	metadata := db.QueryMetadata{
		QueryID:        queryID,
		BytesProcessed: result.BytesProcessed,
		BytesBilled:    result.BytesBilled,
		CacheHit:       result.CacheHit,
		Elapsed:        elapsed,
	}

	log.Debug(
		"executed query",
		slog.String("queryId", queryID),
		slog.Int64("bytesProcessed", result.BytesProcessed),
		slog.Int64("bytesBilled", result.BytesBilled),
		slog.Bool("cacheHit", result.CacheHit),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("elapsed", elapsed),
	)

	assembled, err := assemble(result.Rows, query.SQL, metadata)
	if err != nil {
		var insufficientData *db.InsufficientDataError
		if errors.As(err, &insufficientData) {
			return empty, err
		}
		return empty, wrap.Error(err, "failed to parse query result")
	}

	return assembled, nil
}

// billedBytes is the amount the tracker is charged: bytes billed where the warehouse reports it,
// otherwise bytes processed. A cache hit is free.
func billedBytes(result db.ExecuteResult) int64 {
	if result.BytesBilled > 0 || result.CacheHit {
		return result.BytesBilled
	}
	return result.BytesProcessed
}

func asWarehouseError(err error) error {
	var warehouseErr *db.WarehouseError
	if errors.As(err, &warehouseErr) {
		return err
	}
	return &db.WarehouseError{Err: err}
}
