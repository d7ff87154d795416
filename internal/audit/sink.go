// internal/audit/sink.go
package audit

import (
	"context"
	"time"

	"loan-pipeline/internal/dbx"
)

// Event is one auditable action. Success records whether the attempted
// mutation took effect.
type Event struct {
	Action     string                 `json:"action"`
	Actor      string                 `json:"actor"`
	TargetType string                 `json:"targetType"`
	TargetID   string                 `json:"targetId"`
	Success    bool                   `json:"success"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt time.Time              `json:"occurredAt"`
}

// Sink records audit events. Record takes the caller's transaction handle so
// the event commits or rolls back together with the mutation it describes.
type Sink interface {
	Record(ctx context.Context, tx dbx.DBTX, e Event) error
}
