// internal/httpapi/handlers.go
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/common/errors"
	"loan-pipeline/internal/documents"
	"loan-pipeline/internal/idempotency"
	"loan-pipeline/internal/lender"
	"loan-pipeline/internal/models"
)

const maxBodyBytes = 1 << 20

// replayEnvelope is what the idempotency store holds per key: a reservation
// while the first request executes, then the completed response.
type replayEnvelope struct {
	Completed bool            `json:"completed"`
	Response  json.RawMessage `json:"response,omitempty"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, errors.NewMissingFieldsError("unreadable request body"))
		return nil, false
	}
	return body, true
}

func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(createApplicationSchema, body); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		OwnerUserID string                 `json:"ownerUserId"`
		Name        string                 `json:"name"`
		Metadata    map[string]interface{} `json:"metadata"`
		ProductType string                 `json:"productType"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewMissingFieldsError("invalid JSON body"))
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && s.beginIdempotent(w, r, idempotency.ScopeApplicationCreate, key) {
		return
	}

	app, err := s.apps.Create(r.Context(), applications.CreateRequest{
		OwnerUserID: req.OwnerUserID,
		Name:        req.Name,
		Metadata:    req.Metadata,
		ProductType: models.ProductType(req.ProductType),
	})
	if err != nil {
		if key != "" {
			_ = s.idem.Delete(r.Context(), idempotency.ScopeApplicationCreate, key)
		}
		writeError(w, err)
		return
	}

	if key != "" {
		s.completeIdempotent(r, idempotency.ScopeApplicationCreate, key, app)
	}
	writeJSON(w, http.StatusCreated, app)
}

func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.apps.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (s *Server) handleChangePipeline(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(changePipelineSchema, body); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		State    string `json:"state"`
		Override bool   `json:"override"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewMissingFieldsError("invalid JSON body"))
		return
	}

	// The override capability itself was checked upstream; an override
	// request that reaches this handler without the header was denied there.
	if req.Override && r.Header.Get("X-Override-Granted") != "true" {
		writeError(w, errors.NewForbiddenError("override capability not granted"))
		return
	}

	err := s.apps.ChangeState(r.Context(), r.PathValue("id"), models.PipelineState(req.State), req.Override, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": req.State})
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(uploadDocumentSchema, body); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		DocumentID   string                 `json:"documentId"`
		Title        string                 `json:"title"`
		DocumentType string                 `json:"documentType"`
		MimeType     string                 `json:"mimeType"`
		ContentRef   string                 `json:"contentRef"`
		Metadata     map[string]interface{} `json:"metadata"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewMissingFieldsError("invalid JSON body"))
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key != "" && s.beginIdempotent(w, r, idempotency.ScopeDocumentUpload, key) {
		return
	}

	version, err := s.docs.Upload(r.Context(), documents.UploadRequest{
		ApplicationID: r.PathValue("id"),
		DocumentID:    req.DocumentID,
		Title:         req.Title,
		DocumentType:  models.DocumentType(req.DocumentType),
		MimeType:      req.MimeType,
		Metadata:      req.Metadata,
		ContentRef:    req.ContentRef,
		Actor:         actor(r),
	})
	if err != nil {
		if key != "" {
			_ = s.idem.Delete(r.Context(), idempotency.ScopeDocumentUpload, key)
		}
		writeError(w, err)
		return
	}

	if key != "" {
		s.completeIdempotent(r, idempotency.ScopeDocumentUpload, key, version)
	}
	writeJSON(w, http.StatusCreated, version)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.docs.ListDocuments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleReview(decision documents.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := s.docs.Review(r.Context(), documents.ReviewRequest{
			ApplicationID:     r.PathValue("id"),
			DocumentID:        r.PathValue("documentID"),
			DocumentVersionID: r.PathValue("versionID"),
			Decision:          decision,
			Actor:             actor(r),
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"decision": string(decision)})
	}
}

func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	if err := validateBody(createSubmissionSchema, body); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		ApplicationID  string `json:"applicationId"`
		IdempotencyKey string `json:"idempotencyKey"`
		LenderID       string `json:"lenderId"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, errors.NewMissingFieldsError("invalid JSON body"))
		return
	}

	result, err := s.lender.Submit(r.Context(), lender.SubmitRequest{
		ApplicationID:  req.ApplicationID,
		IdempotencyKey: req.IdempotencyKey,
		LenderID:       req.LenderID,
		Actor:          actor(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, submissionStatus(result), result.Submission)
}

// submissionStatus maps a submission outcome to its HTTP status: replays are
// 200, fresh submissions 201, and failed submissions surface the failure even
// though a row was persisted.
func submissionStatus(result *lender.SubmitResult) int {
	if result.Replayed {
		return http.StatusOK
	}
	if result.Submission.Status == models.SubmissionSubmitted {
		return http.StatusCreated
	}
	if result.Submission.FailureReason == string(errors.ErrCodeMissingDocuments) {
		return http.StatusBadRequest
	}
	return http.StatusBadGateway
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.lender.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleRetrySubmission(w http.ResponseWriter, r *http.Request) {
	retry, err := s.lender.Retry(r.Context(), r.PathValue("id"), actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, retry)
}
