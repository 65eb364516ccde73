package analytics

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"hermannm.dev/eventanalytics/db"
)

// The helpers below read result columns normalized by the executors. They accept each of the
// numeric representations, since the two warehouses type aggregates differently (COUNT is INT64
// in BigQuery and UInt64 in ClickHouse).

func rowInt(row db.Row, column string) (int64, error) {
	switch value := row[column].(type) {
	case int64:
		return value, nil
	case float64:
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return 0, fmt.Errorf("column '%s' has non-finite value %v", column, value)
		}
		return int64(value), nil
	case nil:
		return 0, nil
	default:
		return 0, unexpectedType(column, value, "integer")
	}
}

// rowFloat returns nil for NULL, and for the NaN/Inf results of undefined aggregates.
func rowFloat(row db.Row, column string) (*float64, error) {
	var float float64
	switch value := row[column].(type) {
	case float64:
		float = value
	case int64:
		float = float64(value)
	case nil:
		return nil, nil
	default:
		return nil, unexpectedType(column, value, "number")
	}

	if math.IsNaN(float) || math.IsInf(float, 0) {
		return nil, nil
	}
	return &float, nil
}

// rowFloatOrZero reads a nullable number, where NULL and undefined mean 0.
func rowFloatOrZero(row db.Row, column string) (float64, error) {
	value, err := rowFloat(row, column)
	if err != nil || value == nil {
		return 0, err
	}
	return *value, nil
}

func rowTime(row db.Row, column string) (time.Time, error) {
	switch value := row[column].(type) {
	case time.Time:
		return value.UTC(), nil
	case string:
		parsed, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return time.Time{}, fmt.Errorf("column '%s' has invalid date '%s'", column, value)
		}
		return parsed, nil
	default:
		return time.Time{}, unexpectedType(column, value, "date")
	}
}

func rowString(row db.Row, column string) (string, error) {
	switch value := row[column].(type) {
	case string:
		return value, nil
	case nil:
		return "", nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	default:
		return "", unexpectedType(column, value, "string")
	}
}

func unexpectedType(column string, value any, expected string) error {
	return fmt.Errorf("expected %s in column '%s', got %T", expected, column, value)
}

// otherFields copies the row without the given generated columns.
func otherFields(row db.Row, generated ...string) map[string]any {
	fields := make(map[string]any, len(row))
	for key, value := range row {
		fields[key] = value
	}
	for _, key := range generated {
		delete(fields, key)
	}
	return fields
}

func filledValue(value *float64, aggregation db.Aggregation) *float64 {
	if value == nil && aggregation.Kind.FillsWithZero() {
		zero := 0.0
		return &zero
	}
	return value
}
