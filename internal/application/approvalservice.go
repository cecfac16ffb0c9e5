package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// maxApprovalRepos caps the repository list accepted by a single approval.
const maxApprovalRepos = 50

// recentRolloutLimit bounds the rollout status listing.
const recentRolloutLimit = 20

// ApprovalService re-validates readiness and dispatches approved rollouts.
// The approval decision is made irrevocable by writing an ApprovalRecord to
// the audit sink for every dispatch attempt, delivered or not.
type ApprovalService struct {
	readiness *ReadinessService
	dispatch  driven.Dispatcher
	audit     driven.AuditSink
	eventType string
	timeout   time.Duration
	logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewApprovalService creates an ApprovalService with the required dependencies.
func NewApprovalService(
	readiness *ReadinessService,
	dispatch driven.Dispatcher,
	audit driven.AuditSink,
	eventType string,
	timeout time.Duration,
	logger *slog.Logger,
) *ApprovalService {
	return &ApprovalService{
		readiness: readiness,
		dispatch:  dispatch,
		audit:     audit,
		eventType: eventType,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Approve validates the request, re-runs readiness against the requested
// repository set, and on success dispatches a single rollout event and
// writes an ApprovalRecord. Earlier readiness reports are never trusted:
// repository state may have changed, and an earlier report may have covered
// a different repository set.
//
// The returned report is the fresh one computed by this call, also present
// on the prerequisites_not_met failure path for diagnostics. When dispatch
// delivery fails the record is still written with outcome dispatch-failed
// and returned alongside the dispatch_failed error, preserving the audit
// trail of a decision that could not be delivered.
func (s *ApprovalService) Approve(ctx context.Context, org string, repos []string, rolloutType model.RolloutType, approvedBy string) (*model.ApprovalRecord, *model.ReadinessReport, error) {
	if err := validateApproval(org, repos, rolloutType, approvedBy); err != nil {
		return nil, nil, err
	}

	report, err := s.readiness.Evaluate(ctx, org, repos)
	if err != nil {
		return nil, nil, err
	}

	if !report.AllReady {
		s.logger.Info("approval blocked by readiness",
			"org", org,
			"approved_by", approvedBy,
			"ready", report.Ready,
			"total", report.Total,
		)
		return nil, report, apperror.Newf(apperror.CodePrerequisitesNotMet,
			"%d of %d repositories are not ready", report.Total-report.Ready, report.Total)
	}

	event := model.DispatchEvent{
		CorrelationID: s.newID(),
		Org:           org,
		Repos:         repos,
		RolloutType:   rolloutType,
		ApprovedBy:    approvedBy,
		ValidatedAt:   report.CheckedAt,
	}

	record := model.ApprovalRecord{
		ID:             s.newID(),
		CorrelationID:  event.CorrelationID,
		Org:            org,
		Repos:          repos,
		RolloutType:    rolloutType,
		ApprovedBy:     approvedBy,
		DispatchTarget: s.dispatch.Target(),
		Outcome:        model.OutcomeDispatched,
		ValidatedAt:    report.CheckedAt,
		DispatchedAt:   s.now().UTC(),
	}

	dispatchErr := s.deliver(ctx, event)
	if dispatchErr != nil {
		record.Outcome = model.OutcomeDispatchFailed
		s.logger.Error("rollout dispatch failed",
			"org", org,
			"approved_by", approvedBy,
			"correlation_id", event.CorrelationID,
			"error", dispatchErr,
		)
	}

	if err := s.audit.Append(ctx, record); err != nil {
		// The dispatch may already have fired; losing the record would
		// leave an untraceable rollout.
		s.logger.Error("failed to persist approval record",
			"org", org,
			"correlation_id", record.CorrelationID,
			"outcome", record.Outcome,
			"error", err,
		)
		return nil, report, apperror.Wrap(apperror.CodeInternal, "failed to persist approval record", err)
	}

	if dispatchErr != nil {
		return &record, report, apperror.Wrap(apperror.CodeDispatchFailed, "rollout event could not be delivered", dispatchErr)
	}

	s.logger.Info("rollout dispatched",
		"org", org,
		"repos", len(repos),
		"rollout_type", rolloutType,
		"approved_by", approvedBy,
		"correlation_id", event.CorrelationID,
	)

	return &record, report, nil
}

// RecentRollouts returns the newest approval records for org from the audit
// sink, matched by the correlation ID attached at dispatch time.
func (s *ApprovalService) RecentRollouts(ctx context.Context, org string) ([]model.ApprovalRecord, error) {
	records, err := s.audit.ListRecent(ctx, org, recentRolloutLimit)
	if err != nil {
		return nil, fmt.Errorf("list rollouts for %s: %w", org, err)
	}
	if records == nil {
		records = []model.ApprovalRecord{}
	}
	return records, nil
}

func (s *ApprovalService) deliver(ctx context.Context, event model.DispatchEvent) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.dispatch.Dispatch(ctx, s.eventType, event)
}

// validateApproval checks request shape before any side effect. All field
// problems are collected into one validation_error.
func validateApproval(org string, repos []string, rolloutType model.RolloutType, approvedBy string) error {
	var details []string

	if strings.TrimSpace(org) == "" {
		details = append(details, "org must not be empty")
	}
	if len(repos) == 0 {
		details = append(details, "repos must not be empty")
	}
	if len(repos) > maxApprovalRepos {
		details = append(details, fmt.Sprintf("repos exceeds the maximum of %d", maxApprovalRepos))
	}
	for i, repo := range repos {
		if strings.TrimSpace(repo) == "" {
			details = append(details, fmt.Sprintf("repos[%d] must not be empty", i))
		}
	}
	if !model.ValidRolloutType(rolloutType) {
		details = append(details, fmt.Sprintf("rollout_type %q is not one of full, deps-only, actions-only, dry-run", rolloutType))
	}
	if strings.TrimSpace(approvedBy) == "" {
		details = append(details, "approved_by must not be empty")
	}

	if len(details) > 0 {
		return apperror.New(apperror.CodeValidationError, "invalid approval request").WithDetails(details...)
	}
	return nil
}
