package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"investcalc/pkg/investcalc"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

type errorMessageSetter interface {
	SetErrorMessage(message string)
}

// writeError writes a plain error message with status.
func writeError(w http.ResponseWriter, status int, message string) {
	if setter, ok := w.(errorMessageSetter); ok {
		setter.SetErrorMessage(message)
	}
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeErrorResponse writes err with the status of its classification and,
// for domain errors, the fields a client needs to point at the offending
// row.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	code := investcalc.ErrorCodeOf(err)
	status := mapErrorCodeToHTTPStatus(code)
	if setter, ok := w.(errorMessageSetter); ok {
		setter.SetErrorMessage(err.Error())
	}
	response := ErrorResponse{
		Error:     err.Error(),
		ErrorCode: string(code),
		Details:   errorDetails(err),
	}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	writeJSON(w, status, response)
}

func errorDetails(err error) any {
	var (
		parseErr   *investcalc.ParseError
		balanceErr *investcalc.BalanceViolationError
		deleteErr  *investcalc.DeletionDisallowedError
	)
	switch {
	case errors.As(err, &parseErr):
		return map[string]any{"line": parseErr.Line, "field": parseErr.Field, "value": parseErr.Value}
	case errors.As(err, &balanceErr):
		return map[string]any{
			"stock":     balanceErr.Stock,
			"day":       balanceErr.Day,
			"requested": balanceErr.Requested,
			"available": balanceErr.Available,
		}
	case errors.As(err, &deleteErr):
		return map[string]any{"stock": deleteErr.Stock, "flow_id": deleteErr.FlowID, "day": deleteErr.Day}
	}
	return nil
}

// mapErrorCodeToHTTPStatus maps business error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code investcalc.ErrorCode) int {
	switch code {
	case investcalc.ErrCodeInvalidInput, investcalc.ErrCodeValidation, investcalc.ErrCodeParse:
		return http.StatusBadRequest
	case investcalc.ErrCodeNotFound:
		return http.StatusNotFound
	case investcalc.ErrCodeBalanceViolation, investcalc.ErrCodeDeletionDisallowed:
		return http.StatusConflict
	case investcalc.ErrCodeFetch:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
