package db

import (
	"fmt"
	"strconv"

	"hermannm.dev/enumnames"
	"hermannm.dev/wrap"
)

type DataType uint8

const (
	DataTypeText DataType = iota + 1
	DataTypeInt
	DataTypeFloat
	DataTypeTimestamp
)

var dataTypeNames = enumnames.NewMap(map[DataType]string{
	DataTypeText:      "TEXT",
	DataTypeInt:       "INTEGER",
	DataTypeFloat:     "FLOAT",
	DataTypeTimestamp: "TIMESTAMP",
})

func (dataType DataType) IsValid() bool {
	_, ok := dataTypeNames.GetName(dataType)
	return ok
}

func (dataType DataType) IsNumeric() bool {
	return dataType == DataTypeInt || dataType == DataTypeFloat
}

func (dataType DataType) String() string {
	return dataTypeNames.GetNameOrFallback(dataType, "INVALID_DATA_TYPE")
}

func (dataType DataType) MarshalJSON() ([]byte, error) {
	return dataTypeNames.MarshalToNameJSON(dataType)
}

func (dataType *DataType) UnmarshalJSON(bytes []byte) error {
	return dataTypeNames.UnmarshalFromNameJSON(bytes, dataType)
}

// ConvertValue parses a caller-supplied filter value into the Go type that is bound as a query
// parameter for a column of this data type.
func (dataType DataType) ConvertValue(field string) (any, error) {
	switch dataType {
	case DataTypeText:
		return field, nil
	case DataTypeInt:
		value, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse '%s' as integer", field)
		}
		return value, nil
	case DataTypeFloat:
		value, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, wrap.Errorf(err, "failed to parse '%s' as float", field)
		}
		return value, nil
	default:
		return nil, fmt.Errorf("values of type %v cannot be used in filters", dataType)
	}
}
