// internal/httpapi/server.go
package httpapi

import (
	"net/http"
	"time"

	"loan-pipeline/internal/applications"
	"loan-pipeline/internal/common/logger"
	"loan-pipeline/internal/documents"
	"loan-pipeline/internal/idempotency"
	"loan-pipeline/internal/lender"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the pipeline services over HTTP. Authentication, ownership
// and capability checks happen upstream; this layer trusts the identity and
// override headers the auth collaborator resolves.
type Server struct {
	apps      *applications.Service
	docs      *documents.Service
	lender    *lender.Service
	idem      idempotency.Store
	replayTTL time.Duration
	logger    logger.Logger
}

func NewServer(apps *applications.Service, docs *documents.Service, lenderSvc *lender.Service, idem idempotency.Store, replayTTL time.Duration, log logger.Logger) *Server {
	return &Server{
		apps:      apps,
		docs:      docs,
		lender:    lenderSvc,
		idem:      idem,
		replayTTL: replayTTL,
		logger:    log.WithFields(map[string]interface{}{"component": "httpapi"}),
	}
}

// Routes builds the request mux. No router dependency: method-qualified
// ServeMux patterns cover this surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /applications", s.handleCreateApplication)
	mux.HandleFunc("GET /applications/{id}", s.handleGetApplication)
	mux.HandleFunc("POST /applications/{id}/pipeline", s.handleChangePipeline)
	mux.HandleFunc("POST /applications/{id}/documents", s.handleUploadDocument)
	mux.HandleFunc("GET /applications/{id}/documents", s.handleListDocuments)
	mux.HandleFunc("POST /applications/{id}/documents/{documentID}/versions/{versionID}/accept", s.handleReview(documents.DecisionAccept))
	mux.HandleFunc("POST /applications/{id}/documents/{documentID}/versions/{versionID}/reject", s.handleReview(documents.DecisionReject))
	mux.HandleFunc("POST /lender/submissions", s.handleCreateSubmission)
	mux.HandleFunc("GET /lender/submissions/{id}", s.handleGetSubmission)
	mux.HandleFunc("POST /admin/transmissions/{id}/retry", s.handleRetrySubmission)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

// actor returns the caller identity resolved by the upstream auth
// collaborator.
func actor(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}
