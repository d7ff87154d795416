// internal/idempotency/store.go
package idempotency

import (
	"context"
	"time"
)

// Scopes share one store; each operation family replays independently.
const (
	ScopeApplicationCreate = "application_create"
	ScopeDocumentUpload    = "document_upload"
)

// Store deduplicates requests by (scope, key). PutIfAbsent atomically records
// payload for the key and reports whether this call inserted it; when the key
// already exists the original payload is returned so the caller can replay
// the first response instead of re-executing side effects.
//
// Callers reserve the key with a marker payload before executing, then Put
// the real response, or Delete the reservation when execution fails. The
// atomic insert is what closes the duplicate-execution race; a check-then-act
// sequence would not.
type Store interface {
	PutIfAbsent(ctx context.Context, scope, key string, payload []byte, ttl time.Duration) (existing []byte, inserted bool, err error)
	Put(ctx context.Context, scope, key string, payload []byte, ttl time.Duration) error
	Delete(ctx context.Context, scope, key string) error
}
