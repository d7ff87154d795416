// internal/applications/repository.go
package applications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"loan-pipeline/internal/dbx"
	"loan-pipeline/internal/models"
)

// Repository persists applications. All methods take a dbx.DBTX so callers
// decide the transaction boundary.
type Repository interface {
	Insert(ctx context.Context, q dbx.DBTX, app *models.Application) error
	GetByID(ctx context.Context, q dbx.DBTX, id string) (*models.Application, error)
	GetByIDForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.Application, error)
	UpdateState(ctx context.Context, q dbx.DBTX, id string, state models.PipelineState, updatedAt time.Time) error
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) Insert(ctx context.Context, q dbx.DBTX, app *models.Application) error {
	metadataJSON, err := json.Marshal(app.Metadata)
	if err != nil {
		return fmt.Errorf("marshal application metadata: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO applications (
			id, owner_user_id, name, metadata, product_type,
			pipeline_state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		app.ID,
		app.OwnerUserID,
		app.Name,
		metadataJSON,
		app.ProductType,
		app.PipelineState,
		app.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, q dbx.DBTX, id string) (*models.Application, error) {
	return r.get(ctx, q, id, false)
}

func (r *PostgresRepository) GetByIDForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.Application, error) {
	return r.get(ctx, q, id, true)
}

func (r *PostgresRepository) get(ctx context.Context, q dbx.DBTX, id string, forUpdate bool) (*models.Application, error) {
	query := `
		SELECT id, owner_user_id, name, metadata, product_type,
		       pipeline_state, created_at, updated_at
		FROM applications
		WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var app models.Application
	var metadataJSON []byte
	err := q.QueryRowContext(ctx, query, id).Scan(
		&app.ID,
		&app.OwnerUserID,
		&app.Name,
		&metadataJSON,
		&app.ProductType,
		&app.PipelineState,
		&app.CreatedAt,
		&app.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("select application: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &app.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal application metadata: %w", err)
		}
	}
	return &app, nil
}

func (r *PostgresRepository) UpdateState(ctx context.Context, q dbx.DBTX, id string, state models.PipelineState, updatedAt time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE applications SET pipeline_state = $2, updated_at = $3 WHERE id = $1`,
		id, state, updatedAt,
	)
	if err != nil {
		return fmt.Errorf("update application state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
