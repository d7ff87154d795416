// internal/documents/service.go
package documents

import (
	"context"
	"database/sql"

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

// Decision is a reviewer's verdict on one document version.
type Decision string

const (
	DecisionAccept Decision = "accept"
	DecisionReject Decision = "reject"
)

// Service manages the document/version lifecycle and reviewer decisions.
// Review decisions re-derive the application's pipeline state between
// REQUIRES_DOCS and UNDER_REVIEW; submitted and terminal states are never
// auto-reverted.
type Service struct {
	db     *sql.DB
	repo   Repository
	apps   applications.Repository
	sink   audit.Sink
	clock  models.Clock
	logger logger.Logger
}

func NewService(db *sql.DB, repo Repository, apps applications.Repository, sink audit.Sink, clock models.Clock, log logger.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		apps:   apps,
		sink:   sink,
		clock:  clock,
		logger: log.WithFields(map[string]interface{}{"service": "documents"}),
	}
}

type UploadRequest struct {
	ApplicationID string
	DocumentID    string // empty for a new document
	Title         string
	DocumentType  models.DocumentType
	MimeType      string
	Metadata      map[string]interface{}
	ContentRef    string
	Actor         string
}

// Upload creates a new document at version 1, or appends the next PENDING
// version to an existing document. The mime gate runs before any entity
// write; a rejected upload leaves only an audit event behind.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*models.DocumentVersion, error) {
	if req.ApplicationID == "" || req.Title == "" || req.DocumentType == "" || req.MimeType == "" {
		return nil, errors.NewMissingFieldsError("applicationId, title, documentType and mimeType are required")
	}

	now := s.clock.Now()

	if !policy.MimeAllowed(req.DocumentType, req.MimeType) {
		auditErr := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			return s.sink.Record(ctx, tx, audit.Event{
				Action:     "document_upload_rejected",
				Actor:      req.Actor,
				TargetType: "application",
				TargetID:   req.ApplicationID,
				Success:    false,
				Metadata: map[string]interface{}{
					"documentType": string(req.DocumentType),
					"mimeType":     req.MimeType,
				},
				OccurredAt: now,
			})
		})
		if auditErr != nil {
			return nil, errors.NewStorageError("audit upload rejection", auditErr)
		}
		metrics.DocumentUploads.WithLabelValues("rejected").Inc()
		return nil, errors.NewInvalidMimeTypeError(string(req.DocumentType), req.MimeType)
	}

	var version *models.DocumentVersion
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.apps.GetByID(ctx, tx, req.ApplicationID); err != nil {
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError("application", req.ApplicationID)
			}
			return errors.NewStorageError("select application", err)
		}

		var documentID string
		var versionNumber int

		if req.DocumentID == "" {
			doc := &models.Document{
				ID:                   uuid.New().String(),
				ApplicationID:        req.ApplicationID,
				Title:                req.Title,
				DocumentType:         req.DocumentType,
				CurrentVersionNumber: 1,
			}
			if err := s.repo.InsertDocument(ctx, tx, doc); err != nil {
				return errors.NewStorageError("insert document", err)
			}
			documentID = doc.ID
			versionNumber = 1
		} else {
			// Row lock serializes concurrent uploads to the same document so
			// two uploads cannot claim the same version number.
			doc, err := s.repo.GetDocumentForUpdate(ctx, tx, req.DocumentID)
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError("document", req.DocumentID)
			}
			if err != nil {
				return errors.NewStorageError("select document", err)
			}
			if doc.ApplicationID != req.ApplicationID {
				return errors.NewNotFoundError("document", req.DocumentID)
			}
			documentID = doc.ID
			versionNumber = doc.CurrentVersionNumber + 1
			if err := s.repo.UpdateCurrentVersion(ctx, tx, documentID, versionNumber); err != nil {
				return errors.NewStorageError("bump version counter", err)
			}
		}

		version = &models.DocumentVersion{
			ID:            uuid.New().String(),
			DocumentID:    documentID,
			VersionNumber: versionNumber,
			Status:        models.VersionPending,
			Metadata:      req.Metadata,
			ContentRef:    req.ContentRef,
			CreatedAt:     now,
		}
		if err := s.repo.InsertVersion(ctx, tx, version); err != nil {
			return errors.NewStorageError("insert document version", err)
		}

		return s.sink.Record(ctx, tx, audit.Event{
			Action:     "document_uploaded",
			Actor:      req.Actor,
			TargetType: "document",
			TargetID:   documentID,
			Success:    true,
			Metadata: map[string]interface{}{
				"applicationId": req.ApplicationID,
				"documentType":  string(req.DocumentType),
				"versionNumber": versionNumber,
				"mimeType":      req.MimeType,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.DocumentUploads.WithLabelValues("accepted").Inc()
	s.logger.Info("document version uploaded", map[string]interface{}{
		"applicationId": req.ApplicationID,
		"documentId":    version.DocumentID,
		"versionNumber": version.VersionNumber,
	})
	return version, nil
}

type ReviewRequest struct {
	ApplicationID     string
	DocumentID        string
	DocumentVersionID string
	Decision          Decision
	Actor             string
}

// Review records a reviewer decision on a PENDING version, then recomputes
// whether the product's required document types are all satisfied and moves
// the pipeline between REQUIRES_DOCS and UNDER_REVIEW accordingly. A version
// is decided exactly once.
func (s *Service) Review(ctx context.Context, req ReviewRequest) error {
	if req.Decision != DecisionAccept && req.Decision != DecisionReject {
		return errors.NewMissingFieldsError("decision must be accept or reject")
	}

	now := s.clock.Now()

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// Lock the application row first so concurrent reviews recompute the
		// pipeline state one at a time.
		app, err := s.apps.GetByIDForUpdate(ctx, tx, req.ApplicationID)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("application", req.ApplicationID)
		}
		if err != nil {
			return errors.NewStorageError("select application", err)
		}

		doc, err := s.repo.GetDocumentForUpdate(ctx, tx, req.DocumentID)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("document", req.DocumentID)
		}
		if err != nil {
			return errors.NewStorageError("select document", err)
		}
		if doc.ApplicationID != app.ID {
			return errors.NewNotFoundError("document", req.DocumentID)
		}

		version, err := s.repo.GetVersionForUpdate(ctx, tx, req.DocumentVersionID)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("document version", req.DocumentVersionID)
		}
		if err != nil {
			return errors.NewStorageError("select document version", err)
		}
		if version.DocumentID != doc.ID {
			return errors.NewNotFoundError("document version", req.DocumentVersionID)
		}
		if version.Status != models.VersionPending {
			return errors.NewAlreadyReviewedError(version.ID)
		}

		newStatus := models.VersionAccepted
		action := "document_accepted"
		if req.Decision == DecisionReject {
			newStatus = models.VersionRejected
			action = "document_rejected"
		}
		if err := s.repo.UpdateVersionStatus(ctx, tx, version.ID, newStatus); err != nil {
			return errors.NewStorageError("update version status", err)
		}

		nextState, changed, err := s.recomputeState(ctx, tx, app)
		if err != nil {
			return err
		}
		if changed {
			if err := s.apps.UpdateState(ctx, tx, app.ID, nextState, now); err != nil {
				return errors.NewStorageError("update application state", err)
			}
			metrics.PipelineTransitions.WithLabelValues(string(nextState)).Inc()
		}

		eventMetadata := map[string]interface{}{
			"applicationId": app.ID,
			"documentId":    req.DocumentID,
			"versionNumber": version.VersionNumber,
		}
		if changed {
			eventMetadata["pipelineStateFrom"] = string(app.PipelineState)
			eventMetadata["pipelineStateTo"] = string(nextState)
		}
		return s.sink.Record(ctx, tx, audit.Event{
			Action:     action,
			Actor:      req.Actor,
			TargetType: "document_version",
			TargetID:   version.ID,
			Success:    true,
			Metadata:   eventMetadata,
			OccurredAt: now,
		})
	})
	if err != nil {
		return err
	}

	metrics.DocumentReviews.WithLabelValues(string(req.Decision)).Inc()
	s.logger.Info("document version reviewed", map[string]interface{}{
		"applicationId": req.ApplicationID,
		"versionId":     req.DocumentVersionID,
		"decision":      req.Decision,
	})
	return nil
}

// recomputeState derives the pipeline state from requirement satisfaction.
// Only REQUIRES_DOCS and UNDER_REVIEW participate; once a submission has
// happened the state is final with respect to document review.
func (s *Service) recomputeState(ctx context.Context, tx dbx.DBTX, app *models.Application) (models.PipelineState, bool, error) {
	if app.PipelineState != models.StateRequiresDocs && app.PipelineState != models.StateUnderReview {
		return app.PipelineState, false, nil
	}

	statuses, err := s.repo.CurrentStatusByType(ctx, tx, app.ID)
	if err != nil {
		return "", false, errors.NewStorageError("query version statuses", err)
	}

	satisfied := true
	for _, docType := range policy.RequiredTypes(app.ProductType) {
		if statuses[docType] != models.VersionAccepted {
			satisfied = false
			break
		}
	}

	if app.PipelineState == models.StateRequiresDocs && satisfied {
		return models.StateUnderReview, true, nil
	}
	if app.PipelineState == models.StateUnderReview && !satisfied {
		return models.StateRequiresDocs, true, nil
	}
	return app.PipelineState, false, nil
}

// ListDocuments returns an application's documents.
func (s *Service) ListDocuments(ctx context.Context, applicationID string) ([]models.Document, error) {
	docs, err := s.repo.ListByApplication(ctx, s.db, applicationID)
	if err != nil {
		return nil, errors.NewStorageError("list documents", err)
	}
	return docs, nil
}
