package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared across packages.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidCriterion = errors.New("invalid criterion")
	ErrInvalidKind      = errors.New("invalid eligibility kind")
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidCategory  = errors.New("invalid category")
)

// APIError is the structured error shape returned by the HTTP surface.
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for failure scenarios surfaced to API clients.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeDatabase       = "DATABASE_ERROR"
	ErrCodeExternalAPI    = "EXTERNAL_API_ERROR"
	ErrCodeExtraction     = "EXTRACTION_ERROR"
	ErrCodeEvaluation     = "EVALUATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates an APIError stamped with the current time.
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}
