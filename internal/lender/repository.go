// internal/lender/repository.go
package lender

import (
	"context"
	"database/sql"
	"fmt"

	"loan-pipeline/internal/dbx"
	"loan-pipeline/internal/models"
)

// Repository persists lender submissions and their retries.
type Repository interface {
	// InsertIfAbsent inserts the submission unless one already exists for its
	// (applicationId, idempotencyKey). It reports whether this call inserted
	// the row. The uniqueness lives in a storage constraint, never in a
	// pre-check, so concurrent duplicates cannot both insert.
	InsertIfAbsent(ctx context.Context, q dbx.DBTX, sub *models.LenderSubmission) (bool, error)
	GetByKey(ctx context.Context, q dbx.DBTX, applicationID, idempotencyKey string) (*models.LenderSubmission, error)
	GetByID(ctx context.Context, q dbx.DBTX, id string) (*models.LenderSubmission, error)
	GetByIDForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.LenderSubmission, error)
	UpdateStatus(ctx context.Context, q dbx.DBTX, id string, status models.SubmissionStatus, failureReason string) error
	NextAttemptNumber(ctx context.Context, q dbx.DBTX, submissionID string) (int, error)
	InsertRetry(ctx context.Context, q dbx.DBTX, retry *models.LenderSubmissionRetry) error
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, q dbx.DBTX, sub *models.LenderSubmission) (bool, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO lender_submissions (
			id, application_id, lender_id, idempotency_key, status, failure_reason, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (application_id, idempotency_key) DO NOTHING`,
		sub.ID, sub.ApplicationID, sub.LenderID, sub.IdempotencyKey, sub.Status, sub.FailureReason, sub.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert lender submission: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) GetByKey(ctx context.Context, q dbx.DBTX, applicationID, idempotencyKey string) (*models.LenderSubmission, error) {
	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT id, application_id, lender_id, idempotency_key, status, failure_reason, created_at
		FROM lender_submissions
		WHERE application_id = $1 AND idempotency_key = $2`,
		applicationID, idempotencyKey))
}

func (r *PostgresRepository) GetByID(ctx context.Context, q dbx.DBTX, id string) (*models.LenderSubmission, error) {
	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT id, application_id, lender_id, idempotency_key, status, failure_reason, created_at
		FROM lender_submissions
		WHERE id = $1`, id))
}

// GetByIDForUpdate locks the submission row so concurrent retries serialize.
func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.LenderSubmission, error) {
	return r.scanOne(q.QueryRowContext(ctx, `
		SELECT id, application_id, lender_id, idempotency_key, status, failure_reason, created_at
		FROM lender_submissions
		WHERE id = $1
		FOR UPDATE`, id))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.LenderSubmission, error) {
	var sub models.LenderSubmission
	var failureReason sql.NullString
	err := row.Scan(
		&sub.ID, &sub.ApplicationID, &sub.LenderID, &sub.IdempotencyKey,
		&sub.Status, &failureReason, &sub.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("select lender submission: %w", err)
	}
	sub.FailureReason = failureReason.String
	return &sub, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, q dbx.DBTX, id string, status models.SubmissionStatus, failureReason string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE lender_submissions SET status = $2, failure_reason = $3 WHERE id = $1`,
		id, status, nullableString(failureReason),
	)
	if err != nil {
		return fmt.Errorf("update lender submission: %w", err)
	}
	return nil
}

func (r *PostgresRepository) NextAttemptNumber(ctx context.Context, q dbx.DBTX, submissionID string) (int, error) {
	var next int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0) + 1
		FROM lender_submission_retries
		WHERE lender_submission_id = $1`, submissionID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next attempt number: %w", err)
	}
	return next, nil
}

func (r *PostgresRepository) InsertRetry(ctx context.Context, q dbx.DBTX, retry *models.LenderSubmissionRetry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO lender_submission_retries (id, lender_submission_id, attempt_number, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		retry.ID, retry.LenderSubmissionID, retry.AttemptNumber, retry.Status, retry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission retry: %w", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
