package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"hermannm.dev/eventanalytics/db"
)

func (bq BigQueryDB) VerifyTable(ctx context.Context, table db.Table) ([]string, error) {
	project, dataset, tableID, err := bq.splitTableReference(table.Reference)
	if err != nil {
		return nil, err
	}

	metadata, err := bq.client.DatasetInProject(project, dataset).Table(tableID).Metadata(ctx)
	if err != nil {
		return nil, warehouseError(err, "failed to get table metadata from BigQuery")
	}

	columns := make(map[string]db.DataType, len(metadata.Schema)+1)
	for _, field := range metadata.Schema {
		if field.Repeated {
			columns[field.Name] = 0
		} else {
			columns[field.Name] = dataTypeFromBigQuery(field.Type)
		}
	}

	// Ingestion-time partitioned tables have a pseudo-column that is not part of the schema.
	if metadata.TimePartitioning != nil && metadata.TimePartitioning.Field == "" {
		columns["_PARTITIONTIME"] = db.DataTypeTimestamp
	}

	return db.VerifyColumns(table, columns)
}

// Accepts "project.dataset.table", or "dataset.table" in the client's project.
func (bq BigQueryDB) splitTableReference(
	reference string,
) (project string, dataset string, table string, err error) {
	parts := strings.Split(reference, ".")
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2], nil
	case 2:
		return bq.client.Project(), parts[0], parts[1], nil
	default:
		return "", "", "", fmt.Errorf(
			"invalid BigQuery table reference '%s', expected 'project.dataset.table'",
			reference,
		)
	}
}

func dataTypeFromBigQuery(fieldType bigquery.FieldType) db.DataType {
	switch fieldType {
	case bigquery.IntegerFieldType:
		return db.DataTypeInt
	case bigquery.FloatFieldType, bigquery.NumericFieldType, bigquery.BigNumericFieldType:
		return db.DataTypeFloat
	case bigquery.StringFieldType:
		return db.DataTypeText
	case bigquery.TimestampFieldType, bigquery.DateFieldType, bigquery.DateTimeFieldType:
		return db.DataTypeTimestamp
	default:
		return 0
	}
}
