package investcalc

import (
	"errors"
	"fmt"
)

// ErrorCode defines error classification codes for structured error handling.
type ErrorCode string

// Error codes for different error categories.
const (
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeDatabase           ErrorCode = "DATABASE_ERROR"
	ErrCodeValidation         ErrorCode = "VALIDATION_ERROR"
	ErrCodeParse              ErrorCode = "PARSE_ERROR"
	ErrCodeBalanceViolation   ErrorCode = "BALANCE_VIOLATION"
	ErrCodeDeletionDisallowed ErrorCode = "DELETION_DISALLOWED"
	ErrCodeFetch              ErrorCode = "FETCH_ERROR"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with classification code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError wraps an existing error with classification code and additional context.
func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ParseError reports a malformed line of a bulk import.
type ParseError struct {
	Line  int    // 1-based line number in the submitted text
	Text  string // the raw line
	Field string // "columns", "date", "stock" or "number"
	Value string
}

func (e *ParseError) Error() string {
	if e.Field == "columns" {
		return fmt.Sprintf("line %d: cannot parse columns from %q", e.Line, e.Text)
	}
	return fmt.Sprintf("line %d: cannot parse %q as %s", e.Line, e.Value, e.Field)
}

// BalanceViolationError reports a flow that would drive a stock's running
// share balance below zero.
type BalanceViolationError struct {
	Stock     string
	Day       Day
	Requested Amount // shares the offending flow removes, as a positive number
	Available Amount // balance held right before the offending flow
}

func (e *BalanceViolationError) Error() string {
	return fmt.Sprintf("cannot sell more shares than owned: %s on %s selling %s while owning only %s",
		e.Stock, e.Day, e.Requested.String(), e.Available.String())
}

// DeletionDisallowedError reports a selection that is not a chronological
// suffix of a stock's history.
type DeletionDisallowedError struct {
	Stock  string
	FlowID int64
	Day    Day
}

func (e *DeletionDisallowedError) Error() string {
	return fmt.Sprintf("cannot delete flow %d of %s on %s: later flows of the same stock would remain",
		e.FlowID, e.Stock, e.Day)
}

// FetchError reports a failed quote lookup for one holding.
type FetchError struct {
	Stock string
	Code  string
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch price for %s (%s): %v", e.Stock, e.Code, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ErrorCodeOf classifies err, falling back to ErrCodeInternal.
func ErrorCodeOf(err error) ErrorCode {
	var (
		structured *Error
		parseErr   *ParseError
		balanceErr *BalanceViolationError
		deleteErr  *DeletionDisallowedError
		fetchErr   *FetchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &parseErr):
		return ErrCodeParse
	case errors.As(err, &balanceErr):
		return ErrCodeBalanceViolation
	case errors.As(err, &deleteErr):
		return ErrCodeDeletionDisallowed
	case errors.As(err, &fetchErr):
		return ErrCodeFetch
	case errors.As(err, &structured):
		return structured.Code
	}
	return ErrCodeInternal
}

// IsErrorCode checks if an error matches a specific error code.
func IsErrorCode(err error, code ErrorCode) bool {
	return err != nil && ErrorCodeOf(err) == code
}

func dbError(message string, err error) error {
	if err == nil {
		return nil
	}
	// Already classified errors pass through untouched.
	if ErrorCodeOf(err) != ErrCodeInternal {
		return err
	}
	return WrapError(ErrCodeDatabase, message, err)
}
