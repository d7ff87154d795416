// internal/httpapi/server_test.go
package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/audit"
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/documents"
	"loan-pipeline/internal/idempotency"
	"loan-pipeline/internal/lender"
	"loan-pipeline/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type nopGateway struct{}

func (nopGateway) Submit(ctx context.Context, app *models.Application, lenderID string) error {
	return nil
}

func newTestServer(t *testing.T) (*Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	log := logger.NewNoOpLogger()
	clock := models.FixedClock{T: testNow}
	sink := audit.NewPostgresSink()
	appsRepo := applications.NewPostgresRepository()
	docsRepo := documents.NewPostgresRepository()

	appsSvc := applications.NewService(db, appsRepo, sink, clock, log)
	docsSvc := documents.NewService(db, docsRepo, appsRepo, sink, clock, log)
	lenderSvc := lender.NewService(db, lender.NewPostgresRepository(), appsRepo, docsRepo,
		nopGateway{}, sink, clock, time.Second, log)

	return NewServer(appsSvc, docsSvc, lenderSvc,
		idempotency.NewRedisStore(redisClient), time.Minute, log), mock
}

func TestValidateBody(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		body    string
		wantErr bool
	}{
		{"valid application", createApplicationSchema,
			`{"ownerUserId":"u","name":"n","productType":"standard"}`, false},
		{"missing name", createApplicationSchema,
			`{"ownerUserId":"u","productType":"standard"}`, true},
		{"empty owner", createApplicationSchema,
			`{"ownerUserId":"","name":"n","productType":"standard"}`, true},
		{"not JSON", createApplicationSchema, `{{{`, true},
		{"valid submission", createSubmissionSchema,
			`{"applicationId":"a","idempotencyKey":"k","lenderId":"l"}`, false},
		{"submission without key", createSubmissionSchema,
			`{"applicationId":"a","lenderId":"l"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBody(tt.schema, []byte(tt.body))
			if tt.wantErr {
				assert.Equal(t, errors.ErrCodeMissingFields, errors.CodeOf(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code errors.ErrorCode
		want int
	}{
		{errors.ErrCodeMissingFields, http.StatusBadRequest},
		{errors.ErrCodeInvalidMimeType, http.StatusBadRequest},
		{errors.ErrCodeInvalidTransition, http.StatusBadRequest},
		{errors.ErrCodeMissingDocuments, http.StatusBadRequest},
		{errors.ErrCodeForbidden, http.StatusForbidden},
		{errors.ErrCodeNotFound, http.StatusNotFound},
		{errors.ErrCodeAlreadyReviewed, http.StatusConflict},
		{errors.ErrCodeNotRetryable, http.StatusConflict},
		{errors.ErrCodeLenderTimeout, http.StatusBadGateway},
		{errors.ErrCodeLenderRejected, http.StatusBadGateway},
		{errors.ErrCodeStorageError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.code), string(tt.code))
	}
}

func TestSubmissionStatus(t *testing.T) {
	assert.Equal(t, http.StatusOK, submissionStatus(&lender.SubmitResult{
		Replayed:   true,
		Submission: &models.LenderSubmission{Status: models.SubmissionSubmitted},
	}))
	assert.Equal(t, http.StatusCreated, submissionStatus(&lender.SubmitResult{
		Submission: &models.LenderSubmission{Status: models.SubmissionSubmitted},
	}))
	assert.Equal(t, http.StatusBadRequest, submissionStatus(&lender.SubmitResult{
		Submission: &models.LenderSubmission{
			Status:        models.SubmissionFailed,
			FailureReason: string(errors.ErrCodeMissingDocuments),
		},
	}))
	assert.Equal(t, http.StatusBadGateway, submissionStatus(&lender.SubmitResult{
		Submission: &models.LenderSubmission{
			Status:        models.SubmissionFailed,
			FailureReason: string(errors.ErrCodeLenderTimeout),
		},
	}))
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateApplication_ValidationRejected(t *testing.T) {
	server, mock := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications",
		strings.NewReader(`{"ownerUserId":"u"}`))
	server.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing_fields")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateApplication_IdempotentReplay(t *testing.T) {
	server, mock := newTestServer(t)
	routes := server.Routes()

	// Only the first request reaches the database.
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO applications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO audit_log").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	body := `{"ownerUserId":"user-1","name":"Acme Loan","productType":"standard"}`

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "create-1")
	routes.ServeHTTP(first, req)
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/applications", strings.NewReader(body))
	req.Header.Set("Idempotency-Key", "create-1")
	routes.ServeHTTP(second, req)

	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestChangePipeline_OverrideWithoutCapability(t *testing.T) {
	server, mock := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/applications/app-1/pipeline",
		strings.NewReader(`{"state":"APPROVED","override":true}`))
	req.Header.Set("X-User-ID", "ops-user")
	server.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "forbidden")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplication_NotFound(t *testing.T) {
	server, mock := newTestServer(t)

	mock.ExpectQuery("SELECT id, owner_user_id").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := httptest.NewRecorder()
	server.Routes().ServeHTTP(rec,
		httptest.NewRequest(http.MethodGet, "/applications/missing", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
