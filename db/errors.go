package db

import (
	"errors"
	"fmt"
)

// ValidationError is returned for malformed or out-of-range request parameters. It is always
// detected before any SQL is built.
type ValidationError struct {
	Field   string
	Message string
}

func (err *ValidationError) Error() string {
	return fmt.Sprintf("invalid request parameter '%s': %s", err.Field, err.Message)
}

// IdentifierError is returned when a column, tag field or table name is not in the allow-list.
type IdentifierError struct {
	Kind  string
	Scope string
	Name  string
}

func (err *IdentifierError) Error() string {
	if err.Scope == "" {
		return fmt.Sprintf("unknown %s '%s'", err.Kind, err.Name)
	}
	return fmt.Sprintf("unknown %s '%s' in table '%s'", err.Kind, err.Name, err.Scope)
}

// InsufficientDataError is returned by trend detection when too few buckets had data to fit a
// trend line.
type InsufficientDataError struct {
	DataPoints int
	Required   int
}

func (err *InsufficientDataError) Error() string {
	return fmt.Sprintf(
		"insufficient data: found %d data points, at least %d are required",
		err.DataPoints,
		err.Required,
	)
}

// WarehouseError wraps a failure reported by the warehouse or its driver: authentication, quota,
// malformed SQL, and the like.
type WarehouseError struct {
	Err error
}

func (err *WarehouseError) Error() string {
	return "warehouse query failed: " + err.Err.Error()
}

func (err *WarehouseError) Unwrap() error {
	return err.Err
}

var ErrNoWarehouse = errors.New("no warehouse configured")

func invalidParameter(field string, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
