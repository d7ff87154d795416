// internal/httpapi/respond.go
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"loan-pipeline/internal/common/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	body := errorBody{Code: string(code)}

	var se *errors.StandardError
	if stderrors.As(err, &se) {
		body.Message = se.Message
		body.Details = se.Details
	} else {
		body.Message = err.Error()
	}

	writeJSON(w, statusFor(code), body)
}

func statusFor(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeMissingFields,
		errors.ErrCodeInvalidMimeType,
		errors.ErrCodeInvalidTransition,
		errors.ErrCodeMissingDocuments:
		return http.StatusBadRequest
	case errors.ErrCodeForbidden:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeAlreadyReviewed, errors.ErrCodeNotRetryable:
		return http.StatusConflict
	case errors.ErrCodeLenderTimeout, errors.ErrCodeLenderRejected:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
