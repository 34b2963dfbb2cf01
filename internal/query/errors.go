package query

import (
	"errors"
	"fmt"
)

// Validation error kinds. A *ValidationError matches its kind with errors.Is.
var (
	ErrInvalidCollection               = errors.New("invalid collection")
	ErrInvalidOperation                = errors.New("invalid aggregation operation")
	ErrInvalidAggregationForCollection = errors.New("aggregation operation not supported for collection")
	ErrMissingAggregationField         = errors.New("aggregation field is required")
	ErrUnknownAggregationField         = errors.New("unknown aggregation field")
	ErrUnexpectedAggregationField      = errors.New("aggregation field set for count")
	ErrUnknownDimension                = errors.New("unknown dimension")
	ErrDuplicateDimension              = errors.New("duplicate dimension")
	ErrInvalidChartType                = errors.New("invalid chart type")
	ErrInvalidTimeStep                 = errors.New("invalid time step")
	ErrMissingProjectID                = errors.New("project id is required")
	ErrInvalidDateRange                = errors.New("invalid date range")
	ErrUnknownAction                   = errors.New("unknown editor action")
)

// ValidationError describes why a query or an editor action was refused
type ValidationError struct {
	Kind    error
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// KindName returns a stable identifier for the error kind, used in API responses
func (e *ValidationError) KindName() string {
	switch e.Kind {
	case ErrInvalidCollection:
		return "InvalidCollection"
	case ErrInvalidOperation:
		return "InvalidOperation"
	case ErrInvalidAggregationForCollection:
		return "InvalidAggregationForCollection"
	case ErrMissingAggregationField:
		return "MissingAggregationField"
	case ErrUnknownAggregationField:
		return "UnknownAggregationField"
	case ErrUnexpectedAggregationField:
		return "UnexpectedAggregationField"
	case ErrUnknownDimension:
		return "UnknownDimension"
	case ErrDuplicateDimension:
		return "DuplicateDimension"
	case ErrInvalidChartType:
		return "InvalidChartType"
	case ErrInvalidTimeStep:
		return "InvalidTimeStep"
	case ErrMissingProjectID:
		return "MissingProjectID"
	case ErrInvalidDateRange:
		return "InvalidDateRange"
	case ErrUnknownAction:
		return "UnknownAction"
	default:
		return "Invalid"
	}
}

func invalid(kind error, field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Field: field, Message: fmt.Sprintf(format, args...)}
}
