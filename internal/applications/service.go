// internal/applications/service.go
package applications

import (
	"context"
	"database/sql"

	"loan-pipeline/internal/audit"
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/common/metrics"
	"loan-pipeline/internal/dbx"
	"loan-pipeline/internal/models"
	"loan-pipeline/internal/pipeline"
	"loan-pipeline/internal/policy"

	"github.com/google/uuid"
)

// Service drives explicit, human-triggered pipeline operations. Automatic
// transitions from document review live in the documents package; both go
// through the same state machine.
type Service struct {
	db     *sql.DB
	repo   Repository
	sink   audit.Sink
	clock  models.Clock
	logger logger.Logger
}

func NewService(db *sql.DB, repo Repository, sink audit.Sink, clock models.Clock, log logger.Logger) *Service {
	return &Service{
		db:     db,
		repo:   repo,
		sink:   sink,
		clock:  clock,
		logger: log.WithFields(map[string]interface{}{"service": "applications"}),
	}
}

type CreateRequest struct {
	OwnerUserID string
	Name        string
	Metadata    map[string]interface{}
	ProductType models.ProductType
}

// Create creates the application in its initial pipeline state and emits
// application_created in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Application, error) {
	if req.OwnerUserID == "" || req.Name == "" || req.ProductType == "" {
		return nil, errors.NewMissingFieldsError("ownerUserId, name and productType are required")
	}

	now := s.clock.Now()
	app := &models.Application{
		ID:          uuid.New().String(),
		OwnerUserID: req.OwnerUserID,
		Name:        req.Name,
		Metadata:    req.Metadata,
		ProductType: req.ProductType,
		// A brand new application has no accepted documents, so NEW resolves
		// to REQUIRES_DOCS unless the product requires nothing.
		PipelineState: pipeline.InitialState(len(policy.RequiredTypes(req.ProductType)) == 0),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repo.Insert(ctx, tx, app); err != nil {
			return errors.NewStorageError("insert application", err)
		}
		return s.sink.Record(ctx, tx, audit.Event{
			Action:     "application_created",
			Actor:      req.OwnerUserID,
			TargetType: "application",
			TargetID:   app.ID,
			Success:    true,
			Metadata: map[string]interface{}{
				"productType":   string(app.ProductType),
				"pipelineState": string(app.PipelineState),
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("application created", map[string]interface{}{
		"applicationId": app.ID,
		"ownerUserId":   app.OwnerUserID,
		"pipelineState": app.PipelineState,
	})
	return app, nil
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.GetByID(ctx, s.db, id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application", id)
	}
	if err != nil {
		return nil, errors.NewStorageError("select application", err)
	}
	return app, nil
}

// ChangeState performs an explicit pipeline transition. The override flag is
// decided by the caller's authorization layer; this service only applies it.
// On invalid_transition nothing is persisted.
func (s *Service) ChangeState(ctx context.Context, applicationID string, requested models.PipelineState, overrideGranted bool, actor string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		app, err := s.repo.GetByIDForUpdate(ctx, tx, applicationID)
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("application", applicationID)
		}
		if err != nil {
			return errors.NewStorageError("select application", err)
		}

		next, err := pipeline.AttemptTransition(app.PipelineState, requested, overrideGranted)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		if err := s.repo.UpdateState(ctx, tx, applicationID, next, now); err != nil {
			return errors.NewStorageError("update application state", err)
		}

		return s.sink.Record(ctx, tx, audit.Event{
			Action:     "pipeline_state_changed",
			Actor:      actor,
			TargetType: "application",
			TargetID:   applicationID,
			Success:    true,
			Metadata: map[string]interface{}{
				"from":     string(app.PipelineState),
				"to":       string(next),
				"override": overrideGranted,
			},
			OccurredAt: now,
		})
	})
	if err != nil {
		s.logger.Warn("pipeline transition rejected", map[string]interface{}{
			"applicationId": applicationID,
			"requested":     requested,
			"override":      overrideGranted,
			"error":         err.Error(),
		})
		return err
	}

	metrics.PipelineTransitions.WithLabelValues(string(requested)).Inc()
	s.logger.Info("pipeline state changed", map[string]interface{}{
		"applicationId": applicationID,
		"to":            requested,
		"override":      overrideGranted,
	})
	return nil
}
