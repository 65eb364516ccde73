package bigquery

import (
	"context"
	"errors"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"hermannm.dev/eventanalytics/config"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/eventanalytics/db/sqlgen"
	"hermannm.dev/wrap"
)

// Implements db.Executor, db.Estimator and db.TableVerifier for BigQuery.
type BigQueryDB struct {
	client   *bigquery.Client
	location string
}

func NewBigQueryDB(ctx context.Context, config config.BigQueryConfig) (BigQueryDB, error) {
	var options []option.ClientOption
	if config.CredentialsFile != "" {
		options = append(options, option.WithCredentialsFile(config.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, config.ProjectID, options...)
	if err != nil {
		return BigQueryDB{}, wrap.Error(err, "failed to create BigQuery client")
	}

	return BigQueryDB{client: client, location: config.Location}, nil
}

func (bq BigQueryDB) Dialect() sqlgen.Dialect {
	return Dialect{}
}

func (bq BigQueryDB) Close() error {
	return bq.client.Close()
}

func (bq BigQueryDB) Execute(
	ctx context.Context,
	query db.GeneratedQuery,
	options db.ExecuteOptions,
) (db.ExecuteResult, error) {
	bqQuery := bq.newQuery(query)
	bqQuery.JobID = options.QueryID
	if options.MaxBytesBilled > 0 {
		bqQuery.MaxBytesBilled = options.MaxBytesBilled
	}

	job, err := bqQuery.Run(ctx)
	if err != nil {
		return db.ExecuteResult{}, warehouseError(err, "failed to start BigQuery job")
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return db.ExecuteResult{}, warehouseError(err, "failed to wait for BigQuery job")
	}
	if err := status.Err(); err != nil {
		return db.ExecuteResult{}, warehouseError(err, "BigQuery job failed")
	}

	iter, err := job.Read(ctx)
	if err != nil {
		return db.ExecuteResult{}, warehouseError(err, "failed to read BigQuery job results")
	}

	var rows []db.Row
	for {
		var bqRow map[string]bigquery.Value
		err := iter.Next(&bqRow)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return db.ExecuteResult{}, warehouseError(err, "failed to read result row")
		}

		row := make(db.Row, len(bqRow))
		for key, value := range bqRow {
			row[key] = normalizeValue(value)
		}
		rows = append(rows, row)
	}

	result := db.ExecuteResult{Rows: rows}
	if status.Statistics != nil {
		result.BytesProcessed = status.Statistics.TotalBytesProcessed
		if details, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			result.BytesBilled = details.TotalBytesBilled
			result.CacheHit = details.CacheHit
		}
	}

	return result, nil
}

// EstimateBytes runs the query as a dry run, which validates it and reports the bytes it would
// process without billing anything.
func (bq BigQueryDB) EstimateBytes(ctx context.Context, query db.GeneratedQuery) (int64, error) {
	bqQuery := bq.newQuery(query)
	bqQuery.DryRun = true

	job, err := bqQuery.Run(ctx)
	if err != nil {
		return 0, warehouseError(err, "BigQuery dry run failed")
	}

	status := job.LastStatus()
	if status == nil || status.Statistics == nil {
		return 0, &db.WarehouseError{Err: errors.New("BigQuery dry run returned no statistics")}
	}
	return status.Statistics.TotalBytesProcessed, nil
}

func (bq BigQueryDB) newQuery(query db.GeneratedQuery) *bigquery.Query {
	bqQuery := bq.client.Query(query.SQL)
	bqQuery.Location = bq.location

	bqQuery.Parameters = make([]bigquery.QueryParameter, 0, len(query.Parameters))
	for _, param := range query.Parameters {
		bqQuery.Parameters = append(
			bqQuery.Parameters,
			bigquery.QueryParameter{Name: param.Name, Value: param.Value},
		)
	}

	return bqQuery
}

func warehouseError(err error, message string) error {
	return &db.WarehouseError{Err: wrap.Error(err, message)}
}

// normalizeValue converts the types returned by the BigQuery client to the value types of db.Row.
func normalizeValue(value bigquery.Value) any {
	switch value := value.(type) {
	case civil.Date:
		return value.In(time.UTC)
	case civil.DateTime:
		return value.In(time.UTC)
	case *big.Rat:
		if value == nil {
			return nil
		}
		float, _ := value.Float64()
		return float
	case []bigquery.Value:
		values := make([]any, 0, len(value))
		for _, element := range value {
			values = append(values, normalizeValue(element))
		}
		return values
	case map[string]bigquery.Value:
		fields := make(map[string]any, len(value))
		for key, element := range value {
			fields[key] = normalizeValue(element)
		}
		return fields
	default:
		return value
	}
}
