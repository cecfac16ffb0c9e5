package driven

import (
	"context"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// AuditSink defines the driven port for the append-only audit trail.
// Records are immutable once written; the port deliberately has no update
// or delete methods. Every write is attributed to a session handle or
// explicitly marked unauthenticated by the caller.
type AuditSink interface {
	// Append persists one approval record.
	Append(ctx context.Context, record model.ApprovalRecord) error

	// AppendDecision persists one authorization decision event.
	AppendDecision(ctx context.Context, decision model.AuthzDecision) error

	// ListRecent returns up to limit approval records for org, newest
	// first. Used by the rollout status endpoint.
	ListRecent(ctx context.Context, org string, limit int) ([]model.ApprovalRecord, error)
}
