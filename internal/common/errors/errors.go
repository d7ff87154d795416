// Package errors provides standardized error handling for the application
// pipeline. Every error carries a stable string code that the HTTP layer and
// audit trail can rely on.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Codes
// ==========================

// ErrorCode is a stable machine-readable error code.
type ErrorCode string

const (
	// Validation errors: request malformed, no side effects.
	ErrCodeMissingFields   ErrorCode = "missing_fields"
	ErrCodeInvalidMimeType ErrorCode = "invalid_mime_type"

	// Authorization errors: decided by the external auth collaborator.
	ErrCodeForbidden ErrorCode = "forbidden"

	// State errors: request conflicts with current entity state.
	ErrCodeInvalidTransition ErrorCode = "invalid_transition"
	ErrCodeAlreadyReviewed   ErrorCode = "already_reviewed"
	ErrCodeNotRetryable      ErrorCode = "not_retryable"

	// Policy failures: business precondition unmet, persisted as a failed
	// submission rather than a bare error.
	ErrCodeMissingDocuments ErrorCode = "missing_documents"

	// External gateway failures.
	ErrCodeLenderTimeout  ErrorCode = "lender_timeout"
	ErrCodeLenderRejected ErrorCode = "lender_rejected"

	// Infrastructure.
	ErrCodeNotFound     ErrorCode = "not_found"
	ErrCodeStorageError ErrorCode = "storage_error"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewMissingFieldsError creates a non-retryable request validation error.
func NewMissingFieldsError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingFields,
		Message:   "Required request fields are missing or malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidMimeTypeError creates a non-retryable mime validation error.
func NewInvalidMimeTypeError(documentType, mimeType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidMimeType,
		Message:   "Mime type not allowed for document type",
		Details:   fmt.Sprintf("documentType: %s, mimeType: %s", documentType, mimeType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewForbiddenError creates a non-retryable authorization error.
func NewForbiddenError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeForbidden,
		Message:   "Caller is not permitted to perform this action",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable pipeline state error.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Pipeline transition not permitted",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlreadyReviewedError creates a non-retryable review conflict error.
func NewAlreadyReviewedError(versionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlreadyReviewed,
		Message:   "Document version has already been reviewed",
		Details:   fmt.Sprintf("versionId: %s", versionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotRetryableError creates an error for retrying a non-failed submission.
func NewNotRetryableError(submissionID, status string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotRetryable,
		Message:   "Submission is not in a retryable status",
		Details:   fmt.Sprintf("submissionId: %s, status: %s", submissionID, status),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingDocumentsError creates a non-retryable policy failure.
func NewMissingDocumentsError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingDocuments,
		Message:   "Required documents are not all accepted",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewLenderTimeoutError creates a gateway timeout error. Retryable, but only
// through the explicit retry action.
func NewLenderTimeoutError(lenderID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLenderTimeout,
		Message:   "Lender gateway call timed out",
		Details:   fmt.Sprintf("lenderId: %s", lenderID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLenderRejectedError creates an error for a gateway-reported failure.
func NewLenderRejectedError(lenderID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLenderRejected,
		Message:   "Lender gateway rejected the submission",
		Details:   fmt.Sprintf("lenderId: %s, error: %s", lenderID, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotFoundError creates a non-retryable missing entity error.
func NewNotFoundError(entity, id string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", entity),
		Details:   fmt.Sprintf("id: %s", id),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError wraps a database failure as retryable infrastructure error.
func NewStorageError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeStorageError,
		Message:   "Storage operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf extracts the stable error code, or storage_error for unknown errors.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeStorageError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsRetryable reports whether the error may succeed on an explicit retry.
func IsRetryable(err error) bool {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}
