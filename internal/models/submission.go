// internal/models/submission.go
package models

import "time"

// SubmissionStatus is the outcome recorded for a lender submission or retry.
type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionFailed    SubmissionStatus = "failed"
)

// LenderSubmission records one logical submission attempt against the
// external lender. At most one row exists per (applicationId, idempotencyKey).
type LenderSubmission struct {
	ID             string           `json:"id"`
	ApplicationID  string           `json:"applicationId"`
	LenderID       string           `json:"lenderId"`
	IdempotencyKey string           `json:"idempotencyKey"`
	Status         SubmissionStatus `json:"status"`
	FailureReason  string           `json:"failureReason,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// LenderSubmissionRetry records one explicit retry of a failed submission.
type LenderSubmissionRetry struct {
	ID                 string           `json:"id"`
	LenderSubmissionID string           `json:"lenderSubmissionId"`
	AttemptNumber      int              `json:"attemptNumber"`
	Status             SubmissionStatus `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
}
