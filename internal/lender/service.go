// internal/lender/service.go
package lender

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/audit"
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/common/metrics"
	"loan-pipeline/internal/dbx"
	"loan-pipeline/internal/models"
	"loan-pipeline/internal/policy"

	"github.com/google/uuid"
)

// DocumentStatuses is the slice of the documents repository this service
// needs to gate submissions. Review and submission consult the same
// requirements policy and the same current-version statuses.
type DocumentStatuses interface {
	CurrentStatusByType(ctx context.Context, q dbx.DBTX, applicationID string) (map[models.DocumentType]models.VersionStatus, error)
}

// Service performs idempotent lender submissions and explicit retries.
// Submitting twice with the same idempotency key observes one row; the
// gateway is dispatched at most once per effective submission.
type Service struct {
	db      *sql.DB
	repo    Repository
	apps    applications.Repository
	docs    DocumentStatuses
	gateway Gateway
	sink    audit.Sink
	clock   models.Clock
	timeout time.Duration
	logger  logger.Logger
}

func NewService(db *sql.DB, repo Repository, apps applications.Repository, docs DocumentStatuses, gateway Gateway, sink audit.Sink, clock models.Clock, timeout time.Duration, log logger.Logger) *Service {
	return &Service{
		db:      db,
		repo:    repo,
		apps:    apps,
		docs:    docs,
		gateway: gateway,
		sink:    sink,
		clock:   clock,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"service": "lender"}),
	}
}

type SubmitRequest struct {
	ApplicationID  string
	IdempotencyKey string
	LenderID       string
	Actor          string
}

// SubmitResult carries the submission row plus whether it was an idempotent
// replay of an earlier call, so the HTTP layer can pick 200 vs 201.
type SubmitResult struct {
	Submission *models.LenderSubmission
	Replayed   bool
}

// Submit records one logical submission attempt. Outcomes (submitted, failed
// with missing_documents, failed with a gateway reason) are all persisted
// facts; the returned error is reserved for request and storage problems.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.ApplicationID == "" || req.IdempotencyKey == "" || req.LenderID == "" {
		return nil, errors.NewMissingFieldsError("applicationId, idempotencyKey and lenderId are required")
	}

	// Fast path: a replay never touches the gateway.
	existing, err := s.repo.GetByKey(ctx, s.db, req.ApplicationID, req.IdempotencyKey)
	if err == nil {
		s.logger.Info("submission replayed", map[string]interface{}{
			"applicationId": req.ApplicationID,
			"submissionId":  existing.ID,
		})
		return &SubmitResult{Submission: existing, Replayed: true}, nil
	}
	if err != sql.ErrNoRows {
		return nil, errors.NewStorageError("select lender submission", err)
	}

	app, err := s.apps.GetByID(ctx, s.db, req.ApplicationID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application", req.ApplicationID)
	}
	if err != nil {
		return nil, errors.NewStorageError("select application", err)
	}

	missing, err := s.missingRequiredTypes(ctx, app)
	if err != nil {
		return nil, err
	}

	sub := &models.LenderSubmission{
		ID:             uuid.New().String(),
		ApplicationID:  req.ApplicationID,
		LenderID:       req.LenderID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      s.clock.Now(),
	}

	if len(missing) > 0 {
		sub.Status = models.SubmissionFailed
		sub.FailureReason = string(errors.ErrCodeMissingDocuments)
		return s.persistOutcome(ctx, req, sub, false, map[string]interface{}{
			"missingTypes": missing,
		})
	}

	gatewayErr := s.callGateway(ctx, app, req.LenderID)
	if gatewayErr != nil {
		sub.Status = models.SubmissionFailed
		sub.FailureReason = string(classifyFailure(gatewayErr))
		return s.persistOutcome(ctx, req, sub, false, map[string]interface{}{
			"gatewayError": gatewayErr.Error(),
		})
	}

	sub.Status = models.SubmissionSubmitted
	return s.persistOutcome(ctx, req, sub, true, nil)
}

// persistOutcome inserts the submission row, advances the pipeline on
// success, and audits the attempt, all in one transaction. A uniqueness
// conflict means a concurrent duplicate won the insert; its row is returned
// as a replay.
func (s *Service) persistOutcome(ctx context.Context, req SubmitRequest, sub *models.LenderSubmission, gatewayOK bool, extra map[string]interface{}) (*SubmitResult, error) {
	result := &SubmitResult{Submission: sub}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		inserted, err := s.repo.InsertIfAbsent(ctx, tx, sub)
		if err != nil {
			return errors.NewStorageError("insert lender submission", err)
		}
		if !inserted {
			winner, err := s.repo.GetByKey(ctx, tx, sub.ApplicationID, sub.IdempotencyKey)
			if err != nil {
				return errors.NewStorageError("select lender submission", err)
			}
			result.Submission = winner
			result.Replayed = true
			return nil
		}

		if gatewayOK {
			if err := s.advancePipeline(ctx, tx, sub.ApplicationID); err != nil {
				return err
			}
		}

		eventMetadata := map[string]interface{}{
			"lenderId": sub.LenderID,
			"status":   string(sub.Status),
		}
		if sub.FailureReason != "" {
			eventMetadata["failureReason"] = sub.FailureReason
		}
		for k, v := range extra {
			eventMetadata[k] = v
		}
		return s.sink.Record(ctx, tx, audit.Event{
			Action:     "lender_submission_created",
			Actor:      req.Actor,
			TargetType: "lender_submission",
			TargetID:   sub.ID,
			Success:    gatewayOK,
			Metadata:   eventMetadata,
			OccurredAt: sub.CreatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	if !result.Replayed {
		metrics.LenderSubmissions.WithLabelValues(string(sub.Status), sub.FailureReason).Inc()
	}
	s.logger.Info("lender submission recorded", map[string]interface{}{
		"applicationId": sub.ApplicationID,
		"submissionId":  result.Submission.ID,
		"status":        result.Submission.Status,
		"replayed":      result.Replayed,
	})
	return result, nil
}

// Retry re-invokes the gateway exactly once for a failed submission. It is
// always an explicit, human-triggered action; nothing in this service retries
// on its own.
func (s *Service) Retry(ctx context.Context, submissionID, actor string) (*models.LenderSubmissionRetry, error) {
	sub, err := s.repo.GetByID(ctx, s.db, submissionID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("lender submission", submissionID)
	}
	if err != nil {
		return nil, errors.NewStorageError("select lender submission", err)
	}
	if sub.Status != models.SubmissionFailed {
		return nil, errors.NewNotRetryableError(sub.ID, string(sub.Status))
	}

	app, err := s.apps.GetByID(ctx, s.db, sub.ApplicationID)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application", sub.ApplicationID)
	}
	if err != nil {
		return nil, errors.NewStorageError("select application", err)
	}

	gatewayErr := s.callGateway(ctx, app, sub.LenderID)
	gatewayOK := gatewayErr == nil

	now := s.clock.Now()
	retry := &models.LenderSubmissionRetry{
		ID:                 uuid.New().String(),
		LenderSubmissionID: sub.ID,
		CreatedAt:          now,
	}
	if gatewayOK {
		retry.Status = models.SubmissionSubmitted
	} else {
		retry.Status = models.SubmissionFailed
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Re-check under the row lock; a concurrent retry may have already
		// flipped the submission to submitted.
		locked, err := s.repo.GetByIDForUpdate(ctx, tx, sub.ID)
		if err != nil {
			return errors.NewStorageError("lock lender submission", err)
		}
		if locked.Status != models.SubmissionFailed {
			return errors.NewNotRetryableError(locked.ID, string(locked.Status))
		}

		attempt, err := s.repo.NextAttemptNumber(ctx, tx, sub.ID)
		if err != nil {
			return errors.NewStorageError("next attempt number", err)
		}
		retry.AttemptNumber = attempt

		if err := s.repo.InsertRetry(ctx, tx, retry); err != nil {
			return errors.NewStorageError("insert submission retry", err)
		}

		if gatewayOK {
			if err := s.repo.UpdateStatus(ctx, tx, sub.ID, models.SubmissionSubmitted, ""); err != nil {
				return errors.NewStorageError("update lender submission", err)
			}
			if err := s.advancePipeline(ctx, tx, sub.ApplicationID); err != nil {
				return err
			}
		}

		eventMetadata := map[string]interface{}{
			"attemptNumber": retry.AttemptNumber,
			"lenderId":      sub.LenderID,
		}
		if gatewayErr != nil {
			eventMetadata["gatewayError"] = gatewayErr.Error()
		}
		return s.sink.Record(ctx, tx, audit.Event{
			Action:     "lender_submission_retried",
			Actor:      actor,
			TargetType: "lender_submission",
			TargetID:   sub.ID,
			Success:    gatewayOK,
			Metadata:   eventMetadata,
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.LenderSubmissions.WithLabelValues(string(retry.Status), "retry").Inc()
	s.logger.Info("lender submission retried", map[string]interface{}{
		"submissionId":  sub.ID,
		"attemptNumber": retry.AttemptNumber,
		"status":        retry.Status,
	})
	return retry, nil
}

// Get returns one submission.
func (s *Service) Get(ctx context.Context, id string) (*models.LenderSubmission, error) {
	sub, err := s.repo.GetByID(ctx, s.db, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("lender submission", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("select lender submission", err)
	}
	return sub, nil
}

// callGateway dispatches one bounded gateway call. Once dispatched it runs to
// completion or times out; there is no cancellation beyond the deadline.
func (s *Service) callGateway(ctx context.Context, app *models.Application, lenderID string) error {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := s.gateway.Submit(callCtx, app, lenderID)
	outcome := "success"
	if err != nil {
		outcome = string(classifyFailure(err))
	}
	metrics.LenderGatewayDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Warn("lender gateway call failed", map[string]interface{}{
			"applicationId": app.ID,
			"lenderId":      lenderID,
			"reason":        outcome,
			"error":         err.Error(),
		})
	}
	return err
}

// advancePipeline moves the application to LENDER_SUBMITTED unless it is
// already there or in a terminal state.
func (s *Service) advancePipeline(ctx context.Context, tx dbx.DBTX, applicationID string) error {
	app, err := s.apps.GetByIDForUpdate(ctx, tx, applicationID)
	if err != nil {
		return errors.NewStorageError("lock application", err)
	}
	if app.PipelineState != models.StateRequiresDocs && app.PipelineState != models.StateUnderReview {
		return nil
	}
	if err := s.apps.UpdateState(ctx, tx, applicationID, models.StateLenderSubmitted, s.clock.Now()); err != nil {
		return errors.NewStorageError("update application state", err)
	}
	metrics.PipelineTransitions.WithLabelValues(string(models.StateLenderSubmitted)).Inc()
	return nil
}

// missingRequiredTypes lists required document types without an accepted
// current version, consulting the same policy as document review.
func (s *Service) missingRequiredTypes(ctx context.Context, app *models.Application) ([]string, error) {
	statuses, err := s.docs.CurrentStatusByType(ctx, s.db, app.ID)
	if err != nil {
		return nil, errors.NewStorageError("query version statuses", err)
	}

	var missing []string
	for _, docType := range policy.RequiredTypes(app.ProductType) {
		if statuses[docType] != models.VersionAccepted {
			missing = append(missing, string(docType))
		}
	}
	if len(missing) > 0 {
		s.logger.Info("submission blocked on documents", map[string]interface{}{
			"applicationId": app.ID,
			"missingTypes":  strings.Join(missing, ","),
		})
	}
	return missing, nil
}
