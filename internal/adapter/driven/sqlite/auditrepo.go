package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AuditSink = (*AuditRepo)(nil)

// AuditRepo is the SQLite implementation of the AuditSink port. The tables
// are append-only by construction: this type has no UPDATE or DELETE paths
// and the port exposes none.
type AuditRepo struct {
	db *DB
}

// NewAuditRepo creates a new AuditRepo backed by the given DB.
func NewAuditRepo(db *DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Append persists one approval record. The repository list is stored as a
// JSON array in a single column; records are only ever read back whole.
func (r *AuditRepo) Append(ctx context.Context, record model.ApprovalRecord) error {
	const query = `INSERT INTO approvals
		(id, correlation_id, org, repos, rollout_type, approved_by, dispatch_target, outcome, validated_at, dispatched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	repos, err := json.Marshal(record.Repos)
	if err != nil {
		return fmt.Errorf("marshal repos for approval %s: %w", record.ID, err)
	}

	_, err = r.db.Writer.ExecContext(ctx, query,
		record.ID,
		record.CorrelationID,
		record.Org,
		string(repos),
		string(record.RolloutType),
		record.ApprovedBy,
		record.DispatchTarget,
		string(record.Outcome),
		record.ValidatedAt.UTC(),
		record.DispatchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append approval %s: %w", record.ID, err)
	}

	return nil
}

// AppendDecision persists one authorization decision event.
func (r *AuditRepo) AppendDecision(ctx context.Context, decision model.AuthzDecision) error {
	const query = `INSERT INTO authz_decisions (ts, handle, org, action, allowed, reason)
		VALUES (?, ?, ?, ?, ?, ?)`

	handle := decision.Handle
	if handle == "" {
		handle = "unauthenticated"
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		decision.Timestamp.UTC(),
		handle,
		decision.Org,
		decision.Action,
		decision.Allowed,
		decision.Reason,
	)
	if err != nil {
		return fmt.Errorf("append authz decision for %s/%s: %w", handle, decision.Org, err)
	}

	return nil
}

// ListRecent returns up to limit approval records for org, newest first.
func (r *AuditRepo) ListRecent(ctx context.Context, org string, limit int) ([]model.ApprovalRecord, error) {
	const query = `SELECT id, correlation_id, org, repos, rollout_type, approved_by, dispatch_target, outcome, validated_at, dispatched_at
		FROM approvals WHERE org = ? ORDER BY dispatched_at DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, org, limit)
	if err != nil {
		return nil, fmt.Errorf("list approvals for %s: %w", org, err)
	}
	defer rows.Close()

	var records []model.ApprovalRecord
	for rows.Next() {
		record, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approvals for %s: %w", org, err)
	}

	return records, nil
}

// scanApproval scans one approvals row into an ApprovalRecord.
func scanApproval(rows *sql.Rows) (model.ApprovalRecord, error) {
	var record model.ApprovalRecord
	var repos, rolloutType, outcome string

	err := rows.Scan(
		&record.ID,
		&record.CorrelationID,
		&record.Org,
		&repos,
		&rolloutType,
		&record.ApprovedBy,
		&record.DispatchTarget,
		&outcome,
		&record.ValidatedAt,
		&record.DispatchedAt,
	)
	if err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("scan approval: %w", err)
	}

	if err := json.Unmarshal([]byte(repos), &record.Repos); err != nil {
		return model.ApprovalRecord{}, fmt.Errorf("unmarshal repos for approval %s: %w", record.ID, err)
	}
	record.RolloutType = model.RolloutType(rolloutType)
	record.Outcome = model.ApprovalOutcome(outcome)

	return record, nil
}
