// internal/documents/service_test.go
package documents

import (
	"context"
	"testing"
	"time"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/audit"
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc := NewService(db, NewPostgresRepository(), applications.NewPostgresRepository(),
		audit.NewPostgresSink(), models.FixedClock{T: testNow}, logger.NewNoOpLogger())
	return svc, mock
}

func applicationRows(id string, state models.PipelineState) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "owner_user_id", "name", "metadata", "product_type",
		"pipeline_state", "created_at", "updated_at",
	}).AddRow(id, "user-1", "Acme Loan", []byte(`{}`),
		string(models.ProductStandard), string(state), testNow, testNow)
}

func documentRows(id, appID string, docType models.DocumentType, currentVersion int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "application_id", "title", "document_type", "current_version_number",
	}).AddRow(id, appID, "March Statement", string(docType), currentVersion)
}

func versionRows(id, docID string, number int, status models.VersionStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "document_id", "version_number", "status", "metadata", "content_ref", "created_at",
	}).AddRow(id, docID, number, string(status), []byte(`{}`), "s3://bucket/key", testNow)
}

func statusRows(pairs map[models.DocumentType]models.VersionStatus) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"document_type", "status"})
	for docType, status := range pairs {
		rows.AddRow(string(docType), string(status))
	}
	return rows
}

func TestUpload_NewDocument(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectExec("INSERT INTO documents").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_versions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("document_uploaded", "uploader", "document", sqlmock.AnyArg(),
			true, sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := svc.Upload(context.Background(), UploadRequest{
		ApplicationID: "app-1",
		Title:         "March Statement",
		DocumentType:  models.DocTypeBankStatement,
		MimeType:      "application/pdf",
		ContentRef:    "s3://bucket/key",
		Actor:         "uploader",
	})

	require.NoError(t, err)
	assert.Equal(t, 1, version.VersionNumber)
	assert.Equal(t, models.VersionPending, version.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_MimeRejectedBeforePersistence(t *testing.T) {
	svc, mock := newTestService(t)

	// Only the audit event is written; no document or version rows.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("document_upload_rejected", "uploader", "application", "app-1",
			false, sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	_, err := svc.Upload(context.Background(), UploadRequest{
		ApplicationID: "app-1",
		Title:         "March Statement",
		DocumentType:  models.DocTypeBankStatement,
		MimeType:      "application/x-msdownload",
		Actor:         "uploader",
	})

	assert.Equal(t, errors.ErrCodeInvalidMimeType, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_NextVersionNumber(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 3))
	mock.ExpectExec("UPDATE documents SET current_version_number").
		WithArgs("doc-1", 4).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_versions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := svc.Upload(context.Background(), UploadRequest{
		ApplicationID: "app-1",
		DocumentID:    "doc-1",
		Title:         "March Statement",
		DocumentType:  models.DocTypeBankStatement,
		MimeType:      "image/png",
		Actor:         "uploader",
	})

	require.NoError(t, err)
	assert.Equal(t, 4, version.VersionNumber)
	assert.Equal(t, "doc-1", version.DocumentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpload_DocumentBelongsToOtherApplication(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-9").
		WillReturnRows(documentRows("doc-9", "app-other", models.DocTypeBankStatement, 1))
	mock.ExpectRollback()

	_, err := svc.Upload(context.Background(), UploadRequest{
		ApplicationID: "app-1",
		DocumentID:    "doc-9",
		Title:         "March Statement",
		DocumentType:  models.DocTypeBankStatement,
		MimeType:      "application/pdf",
		Actor:         "uploader",
	})

	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_AcceptMovesToUnderReview(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 1))
	mock.ExpectQuery("SELECT id, document_id.*FOR UPDATE").
		WithArgs("ver-1").
		WillReturnRows(versionRows("ver-1", "doc-1", 1, models.VersionPending))
	mock.ExpectExec("UPDATE document_versions SET status").
		WithArgs("ver-1", string(models.VersionAccepted)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT d.document_type, v.status").
		WithArgs("app-1").
		WillReturnRows(statusRows(map[models.DocumentType]models.VersionStatus{
			models.DocTypeBankStatement: models.VersionAccepted,
			models.DocTypeIDDocument:    models.VersionAccepted,
		}))
	mock.ExpectExec("UPDATE applications SET pipeline_state").
		WithArgs("app-1", string(models.StateUnderReview), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("document_accepted", "reviewer", "document_version", "ver-1",
			true, sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-1",
		Decision:          DecisionAccept,
		Actor:             "reviewer",
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_AcceptWithMissingTypeStaysPut(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 1))
	mock.ExpectQuery("SELECT id, document_id.*FOR UPDATE").
		WithArgs("ver-1").
		WillReturnRows(versionRows("ver-1", "doc-1", 1, models.VersionPending))
	mock.ExpectExec("UPDATE document_versions SET status").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Only the bank statement exists; the id document is still missing, so
	// the application stays in REQUIRES_DOCS and no state update runs.
	mock.ExpectQuery("SELECT d.document_type, v.status").
		WithArgs("app-1").
		WillReturnRows(statusRows(map[models.DocumentType]models.VersionStatus{
			models.DocTypeBankStatement: models.VersionAccepted,
		}))
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-1",
		Decision:          DecisionAccept,
		Actor:             "reviewer",
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_RejectRevertsUnderReview(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateUnderReview))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 2))
	mock.ExpectQuery("SELECT id, document_id.*FOR UPDATE").
		WithArgs("ver-2").
		WillReturnRows(versionRows("ver-2", "doc-1", 2, models.VersionPending))
	mock.ExpectExec("UPDATE document_versions SET status").
		WithArgs("ver-2", string(models.VersionRejected)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT d.document_type, v.status").
		WithArgs("app-1").
		WillReturnRows(statusRows(map[models.DocumentType]models.VersionStatus{
			models.DocTypeBankStatement: models.VersionRejected,
			models.DocTypeIDDocument:    models.VersionAccepted,
		}))
	mock.ExpectExec("UPDATE applications SET pipeline_state").
		WithArgs("app-1", string(models.StateRequiresDocs), testNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs("document_rejected", "reviewer", "document_version", "ver-2",
			true, sqlmock.AnyArg(), testNow).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-2",
		Decision:          DecisionReject,
		Actor:             "reviewer",
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_AlreadyReviewed(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateUnderReview))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 1))
	mock.ExpectQuery("SELECT id, document_id.*FOR UPDATE").
		WithArgs("ver-1").
		WillReturnRows(versionRows("ver-1", "doc-1", 1, models.VersionAccepted))
	mock.ExpectRollback()

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-1",
		Decision:          DecisionAccept,
		Actor:             "reviewer",
	})

	assert.Equal(t, errors.ErrCodeAlreadyReviewed, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_VersionFromOtherDocument(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, owner_user_id.*FOR UPDATE").
		WithArgs("app-1").
		WillReturnRows(applicationRows("app-1", models.StateRequiresDocs))
	mock.ExpectQuery("SELECT id, application_id.*FOR UPDATE").
		WithArgs("doc-1").
		WillReturnRows(documentRows("doc-1", "app-1", models.DocTypeBankStatement, 1))
	mock.ExpectQuery("SELECT id, document_id.*FOR UPDATE").
		WithArgs("ver-9").
		WillReturnRows(versionRows("ver-9", "doc-other", 1, models.VersionPending))
	mock.ExpectRollback()

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-9",
		Decision:          DecisionAccept,
		Actor:             "reviewer",
	})

	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReview_InvalidDecision(t *testing.T) {
	svc, mock := newTestService(t)

	err := svc.Review(context.Background(), ReviewRequest{
		ApplicationID:     "app-1",
		DocumentID:        "doc-1",
		DocumentVersionID: "ver-1",
		Decision:          Decision("maybe"),
	})

	assert.Equal(t, errors.ErrCodeMissingFields, errors.CodeOf(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
