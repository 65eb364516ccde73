package db

import (
	"hermannm.dev/enumnames"
)

// FilterOperator is the comparison a Condition applies between a column and its values.
type FilterOperator uint8

const (
	OperatorEquals FilterOperator = iota + 1
	OperatorNotEquals
	OperatorGreaterThan
	OperatorLessThan
	OperatorIn
)

var operatorNames = enumnames.NewMap(map[FilterOperator]string{
	OperatorEquals:      "EQUALS",
	OperatorNotEquals:   "NOT_EQUALS",
	OperatorGreaterThan: "GREATER_THAN",
	OperatorLessThan:    "LESS_THAN",
	OperatorIn:          "IN",
})

func (operator FilterOperator) IsValid() bool {
	_, ok := operatorNames.GetName(operator)
	return ok
}

func (operator FilterOperator) String() string {
	return operatorNames.GetNameOrFallback(operator, "INVALID_OPERATOR")
}

func (operator FilterOperator) MarshalJSON() ([]byte, error) {
	return operatorNames.MarshalToNameJSON(operator)
}

func (operator *FilterOperator) UnmarshalJSON(bytes []byte) error {
	return operatorNames.UnmarshalFromNameJSON(bytes, operator)
}

// Symbol returns the SQL comparison symbol. OperatorIn is written by the dialect, since the two
// supported warehouses bind lists differently.
func (operator FilterOperator) Symbol() string {
	switch operator {
	case OperatorNotEquals:
		return "!="
	case OperatorGreaterThan:
		return ">"
	case OperatorLessThan:
		return "<"
	default:
		return "="
	}
}
