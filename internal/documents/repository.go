// internal/documents/repository.go
package documents

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"loan-pipeline/internal/dbx"
	"loan-pipeline/internal/models"
)

// Repository persists documents and their versions.
type Repository interface {
	InsertDocument(ctx context.Context, q dbx.DBTX, doc *models.Document) error
	GetDocumentForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.Document, error)
	UpdateCurrentVersion(ctx context.Context, q dbx.DBTX, documentID string, versionNumber int) error
	InsertVersion(ctx context.Context, q dbx.DBTX, v *models.DocumentVersion) error
	GetVersionForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.DocumentVersion, error)
	UpdateVersionStatus(ctx context.Context, q dbx.DBTX, id string, status models.VersionStatus) error
	ListByApplication(ctx context.Context, q dbx.DBTX, applicationID string) ([]models.Document, error)
	CurrentStatusByType(ctx context.Context, q dbx.DBTX, applicationID string) (map[models.DocumentType]models.VersionStatus, error)
}

type PostgresRepository struct{}

func NewPostgresRepository() *PostgresRepository {
	return &PostgresRepository{}
}

func (r *PostgresRepository) InsertDocument(ctx context.Context, q dbx.DBTX, doc *models.Document) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO documents (id, application_id, title, document_type, current_version_number)
		VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.ApplicationID, doc.Title, doc.DocumentType, doc.CurrentVersionNumber,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocumentForUpdate locks the document row so concurrent uploads serialize
// the read-increment-write of current_version_number.
func (r *PostgresRepository) GetDocumentForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.Document, error) {
	var doc models.Document
	err := q.QueryRowContext(ctx, `
		SELECT id, application_id, title, document_type, current_version_number
		FROM documents
		WHERE id = $1
		FOR UPDATE`, id).Scan(
		&doc.ID, &doc.ApplicationID, &doc.Title, &doc.DocumentType, &doc.CurrentVersionNumber,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("select document: %w", err)
	}
	return &doc, nil
}

func (r *PostgresRepository) UpdateCurrentVersion(ctx context.Context, q dbx.DBTX, documentID string, versionNumber int) error {
	_, err := q.ExecContext(ctx, `
		UPDATE documents SET current_version_number = $2 WHERE id = $1`,
		documentID, versionNumber,
	)
	if err != nil {
		return fmt.Errorf("update document version counter: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertVersion(ctx context.Context, q dbx.DBTX, v *models.DocumentVersion) error {
	metadataJSON, err := json.Marshal(v.Metadata)
	if err != nil {
		return fmt.Errorf("marshal version metadata: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, version_number, status, metadata, content_ref, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.ID, v.DocumentID, v.VersionNumber, v.Status, metadataJSON, v.ContentRef, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document version: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetVersionForUpdate(ctx context.Context, q dbx.DBTX, id string) (*models.DocumentVersion, error) {
	var v models.DocumentVersion
	var metadataJSON []byte
	err := q.QueryRowContext(ctx, `
		SELECT id, document_id, version_number, status, metadata, content_ref, created_at
		FROM document_versions
		WHERE id = $1
		FOR UPDATE`, id).Scan(
		&v.ID, &v.DocumentID, &v.VersionNumber, &v.Status, &metadataJSON, &v.ContentRef, &v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("select document version: %w", err)
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &v.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal version metadata: %w", err)
		}
	}
	return &v, nil
}

func (r *PostgresRepository) UpdateVersionStatus(ctx context.Context, q dbx.DBTX, id string, status models.VersionStatus) error {
	_, err := q.ExecContext(ctx, `
		UPDATE document_versions SET status = $2 WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("update version status: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByApplication(ctx context.Context, q dbx.DBTX, applicationID string) ([]models.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, application_id, title, document_type, current_version_number
		FROM documents
		WHERE application_id = $1
		ORDER BY title`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.ApplicationID, &doc.Title, &doc.DocumentType, &doc.CurrentVersionNumber); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// CurrentStatusByType reports the review status of each document type's
// current version. When an application has several documents of one type the
// accepted one wins, since a single accepted current version satisfies the
// requirement.
func (r *PostgresRepository) CurrentStatusByType(ctx context.Context, q dbx.DBTX, applicationID string) (map[models.DocumentType]models.VersionStatus, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.document_type, v.status
		FROM documents d
		JOIN document_versions v
		  ON v.document_id = d.id
		 AND v.version_number = d.current_version_number
		WHERE d.application_id = $1`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("query current version statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[models.DocumentType]models.VersionStatus)
	for rows.Next() {
		var docType models.DocumentType
		var status models.VersionStatus
		if err := rows.Scan(&docType, &status); err != nil {
			return nil, fmt.Errorf("scan version status: %w", err)
		}
		if existing, ok := statuses[docType]; ok && existing == models.VersionAccepted {
			continue
		}
		statuses[docType] = status
	}
	return statuses, rows.Err()
}
