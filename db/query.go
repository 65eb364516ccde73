package db

import (
	"context"
	"time"
)

// Parameter is a named value bound to an @name placeholder in generated SQL.
type Parameter struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// GeneratedQuery is the output of a SQL builder. User-supplied values only ever appear in
// Parameters, never in SQL.
type GeneratedQuery struct {
	SQL        string      `json:"sql"`
	Parameters []Parameter `json:"parameters"`
}

// Row is one result row, keyed by column alias. Values are normalized by the executor to int64,
// float64, string, bool, time.Time, []any or nil.
type Row map[string]any

type ExecuteOptions struct {
	// Assigned by the caller, and passed on to the warehouse as job/query ID where supported.
	QueryID string
	// If positive, the warehouse is asked to fail the query rather than bill more than this.
	MaxBytesBilled int64
}

type ExecuteResult struct {
	Rows           []Row
	BytesProcessed int64
	BytesBilled    int64
	CacheHit       bool
}

// Executor runs generated SQL against a warehouse. Implementations return failures from the
// warehouse as *WarehouseError.
type Executor interface {
	Execute(ctx context.Context, query GeneratedQuery, options ExecuteOptions) (ExecuteResult, error)
}

// Estimator is implemented by executors that can estimate the bytes a query would process without
// running it.
type Estimator interface {
	EstimateBytes(ctx context.Context, query GeneratedQuery) (int64, error)
}

// TableVerifier is implemented by executors that can look up a table's columns, to check the
// configured tables at startup. See VerifyColumns for the result.
type TableVerifier interface {
	VerifyTable(ctx context.Context, table Table) (mismatched []string, err error)
}

// QueryMetadata is attached to every analytical result for auditing and cost accounting.
type QueryMetadata struct {
	QueryID        string        `json:"queryId"`
	BytesProcessed int64         `json:"bytesProcessed"`
	BytesBilled    int64         `json:"bytesBilled"`
	CacheHit       bool          `json:"cacheHit"`
	Elapsed        time.Duration `json:"elapsed"`
}
