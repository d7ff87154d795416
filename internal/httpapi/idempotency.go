// internal/httpapi/idempotency.go
package httpapi

import (
	"encoding/json"
	"net/http"
)

// beginIdempotent atomically reserves the key before the request executes.
// It reports true when a response was already written: an idempotent replay
// of a completed request, a conflict with one still in flight, or a store
// failure. The reservation closes the window where two identical concurrent
// requests would both execute.
func (s *Server) beginIdempotent(w http.ResponseWriter, r *http.Request, scope, key string) bool {
	reservation, _ := json.Marshal(replayEnvelope{Completed: false})

	existing, inserted, err := s.idem.PutIfAbsent(r.Context(), scope, key, reservation, s.replayTTL)
	if err != nil {
		s.logger.Error("idempotency reservation failed", map[string]interface{}{
			"scope": scope,
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: "storage_error", Message: "idempotency store unavailable"})
		return true
	}
	if inserted {
		return false
	}

	var envelope replayEnvelope
	if err := json.Unmarshal(existing, &envelope); err != nil || !envelope.Completed {
		writeJSON(w, http.StatusConflict, errorBody{Code: "request_in_flight", Message: "identical request is still being processed"})
		return true
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(envelope.Response)
	return true
}

// completeIdempotent stores the response so later replays return it verbatim.
func (s *Server) completeIdempotent(r *http.Request, scope, key string, response interface{}) {
	raw, err := json.Marshal(response)
	if err != nil {
		s.logger.Warn("idempotency response marshal failed", map[string]interface{}{"scope": scope})
		return
	}
	payload, _ := json.Marshal(replayEnvelope{Completed: true, Response: raw})
	if err := s.idem.Put(r.Context(), scope, key, payload, s.replayTTL); err != nil {
		s.logger.Warn("idempotency response store failed", map[string]interface{}{
			"scope": scope,
			"error": err.Error(),
		})
	}
}
