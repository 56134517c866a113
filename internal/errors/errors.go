// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoTick             = errors.New("no tick available")
	ErrNoHistory          = errors.New("no deal history available")
	ErrSymbolNotFound     = errors.New("symbol not found")
	ErrPositionNotFound   = errors.New("position not found")
	ErrOrderRejected      = errors.New("order rejected")
	ErrInvalidStops       = errors.New("invalid stop levels")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing gateway credentials")
	ErrScorerUnavailable  = errors.New("scorer unavailable")
	ErrStoreClosed        = errors.New("state store closed")
)

// GatewayError represents an error from the brokerage gateway. Gateway
// failures are transient from the scanner's perspective: the affected symbol
// is skipped for the cycle, never escalated.
type GatewayError struct {
	Op     string
	Symbol string
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("gateway %s %s: %v", e.Op, e.Symbol, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(op, symbol string, err error) *GatewayError {
	return &GatewayError{Op: op, Symbol: symbol, Err: err}
}

// RiskError represents a hard risk violation surfaced to the operator.
type RiskError struct {
	Rule    string
	Current float64
	Limit   float64
	Message string
}

func (e *RiskError) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (current: %.2f, limit: %.2f)", e.Rule, e.Message, e.Current, e.Limit)
}

// NewRiskError creates a new RiskError.
func NewRiskError(rule string, current, limit float64, message string) *RiskError {
	return &RiskError{Rule: rule, Current: current, Limit: limit, Message: message}
}

// DataError represents a data-related error (stale candles, empty series).
type DataError struct {
	DataType string
	Symbol   string
	Err      error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error [%s] %s: %v", e.DataType, e.Symbol, e.Err)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol string, err error) *DataError {
	return &DataError{DataType: dataType, Symbol: symbol, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
