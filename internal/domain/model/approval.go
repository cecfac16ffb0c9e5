package model

import "time"

// RolloutType enumerates the supported rollout flavors.
type RolloutType string

const (
	RolloutFull        RolloutType = "full"
	RolloutDepsOnly    RolloutType = "deps-only"
	RolloutActionsOnly RolloutType = "actions-only"
	RolloutDryRun      RolloutType = "dry-run"
)

// ValidRolloutType reports whether t is a member of the enumeration.
func ValidRolloutType(t RolloutType) bool {
	switch t {
	case RolloutFull, RolloutDepsOnly, RolloutActionsOnly, RolloutDryRun:
		return true
	}
	return false
}

// ApprovalOutcome records whether an approved rollout was delivered.
type ApprovalOutcome string

const (
	OutcomeDispatched     ApprovalOutcome = "dispatched"
	OutcomeDispatchFailed ApprovalOutcome = "dispatch-failed"
)

// ApprovalRecord is the immutable audit unit for one approval decision.
// CorrelationID is attached to the dispatched event so downstream workers
// and the status endpoint can match rollout runs back to this record.
type ApprovalRecord struct {
	ID             string
	CorrelationID  string
	Org            string
	Repos          []string
	RolloutType    RolloutType
	ApprovedBy     string
	DispatchTarget string
	Outcome        ApprovalOutcome
	ValidatedAt    time.Time
	DispatchedAt   time.Time
}

// DispatchEvent is the payload delivered to the external trigger target.
type DispatchEvent struct {
	CorrelationID string      `json:"correlation_id"`
	Org           string      `json:"org"`
	Repos         []string    `json:"repos"`
	RolloutType   RolloutType `json:"rollout_type"`
	ApprovedBy    string      `json:"approved_by"`
	ValidatedAt   time.Time   `json:"validated_at"`
}
