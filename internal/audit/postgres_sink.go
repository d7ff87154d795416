// internal/audit/postgres_sink.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"loan-pipeline/internal/dbx"
)

// PostgresSink writes audit events into the audit_log table using whatever
// DBTX the caller passes, so events share the caller's transaction.
type PostgresSink struct{}

func NewPostgresSink() *PostgresSink {
	return &PostgresSink{}
}

func (s *PostgresSink) Record(ctx context.Context, tx dbx.DBTX, e Event) error {
	metadataJSON := []byte("{}")
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadataJSON = b
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (action, actor, target_type, target_id, success, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.Action,
		e.Actor,
		e.TargetType,
		e.TargetID,
		e.Success,
		metadataJSON,
		e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("audit log insert failed: %w", err)
	}
	return nil
}
