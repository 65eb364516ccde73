package clickhouse

import (
	"errors"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/proto"
	"hermannm.dev/eventanalytics/db"
	"hermannm.dev/wrap"
)

var timeType = reflect.TypeOf(time.Time{})

// normalizeValue converts a scanned value to the value types of db.Row. Nullable columns scan into
// pointers, so nil pointers become nil.
func normalizeValue(value reflect.Value) any {
	for value.Kind() == reflect.Pointer || value.Kind() == reflect.Interface {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}

	if value.Type() == timeType {
		return value.Interface().(time.Time).UTC()
	}

	switch value.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return value.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(value.Uint())
	case reflect.Float32, reflect.Float64:
		return value.Float()
	case reflect.String:
		return value.String()
	case reflect.Bool:
		return value.Bool()
	case reflect.Slice, reflect.Array:
		values := make([]any, 0, value.Len())
		for i := 0; i < value.Len(); i++ {
			values = append(values, normalizeValue(value.Index(i)))
		}
		return values
	default:
		return value.Interface()
	}
}

// See https://github.com/ClickHouse/ClickHouse/blob/bd387f6d2c30f67f2822244c0648f2169adab4d3/src/Common/ErrorCodes.cpp
const (
	clickhouseSyntaxErrorCode       = 62
	clickhouseTooManyBytesErrorCode = 307
)

func warehouseError(err error, message string) error {
	var exception *proto.Exception
	if errors.As(err, &exception) {
		switch exception.Code {
		case clickhouseTooManyBytesErrorCode:
			message += " (query would read more than the maximum bytes allowed)"
		case clickhouseSyntaxErrorCode:
			message += " (note that QUALIFY requires ClickHouse 24.4 or newer)"
		}
	}

	return &db.WarehouseError{Err: wrap.Error(err, message)}
}
