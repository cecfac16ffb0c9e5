package application_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/application"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

func newApprovalService(sc *fakeSourceControl, dispatcher *fakeDispatcher, audit *fakeAudit) *application.ApprovalService {
	readiness := application.NewReadinessService(sc, 5, time.Second, slog.Default())
	return application.NewApprovalService(readiness, dispatcher, audit, "standards-rollout", time.Second, slog.Default())
}

func TestApprovalService_ValidationErrors(t *testing.T) {
	sc := newFakeSourceControl()
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	svc := newApprovalService(sc, dispatcher, audit)

	t.Run("all field problems are collected into one error", func(t *testing.T) {
		_, _, err := svc.Approve(context.Background(), "", nil, "sideways", "")
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.CodeValidationError))

		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Details, "org must not be empty")
		assert.Contains(t, appErr.Details, "repos must not be empty")
		assert.Contains(t, appErr.Details, `rollout_type "sideways" is not one of full, deps-only, actions-only, dry-run`)
		assert.Contains(t, appErr.Details, "approved_by must not be empty")
	})

	t.Run("blank repo entries are rejected", func(t *testing.T) {
		_, _, err := svc.Approve(context.Background(), "acme", []string{"web-app", " "}, model.RolloutFull, "alice")
		require.Error(t, err)

		var appErr *apperror.Error
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Details, "repos[1] must not be empty")
	})

	t.Run("repo list over the cap is rejected", func(t *testing.T) {
		repos := make([]string, 51)
		for i := range repos {
			repos[i] = "repo"
		}
		_, _, err := svc.Approve(context.Background(), "acme", repos, model.RolloutFull, "alice")
		require.Error(t, err)
		assert.True(t, apperror.Is(err, apperror.CodeValidationError))
	})

	t.Run("validation failures cause no side effects", func(t *testing.T) {
		assert.Empty(t, dispatcher.events)
		assert.Empty(t, audit.records)
	})
}

func TestApprovalService_NotReadyBlocksDispatch(t *testing.T) {
	sc := newFakeSourceControl()
	sc.addReadyRepo("web-app")
	// "api" is never registered, so it fails readiness.
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	svc := newApprovalService(sc, dispatcher, audit)

	record, report, err := svc.Approve(context.Background(), "acme", []string{"web-app", "api"}, model.RolloutFull, "alice")
	require.Error(t, err)

	var appErr *apperror.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.CodePrerequisitesNotMet, appErr.Code)
	assert.Equal(t, "1 of 2 repositories are not ready", appErr.Message)

	assert.Nil(t, record)
	require.NotNil(t, report, "the fresh report is returned for diagnostics")
	assert.False(t, report.AllReady)

	assert.Empty(t, dispatcher.events, "no event may be dispatched when any repo is not ready")
	assert.Empty(t, audit.records)
}

func TestApprovalService_SuccessfulApproval(t *testing.T) {
	sc := newFakeSourceControl()
	sc.addReadyRepo("web-app")
	sc.addReadyRepo("api")
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{}
	svc := newApprovalService(sc, dispatcher, audit)

	record, report, err := svc.Approve(context.Background(), "acme", []string{"web-app", "api"}, model.RolloutDepsOnly, "alice")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, report)

	require.Len(t, dispatcher.events, 1, "exactly one event per approval")
	event := dispatcher.events[0]
	assert.Equal(t, "standards-rollout", dispatcher.types[0])
	assert.Equal(t, "acme", event.Org)
	assert.Equal(t, []string{"web-app", "api"}, event.Repos)
	assert.Equal(t, model.RolloutDepsOnly, event.RolloutType)
	assert.Equal(t, "alice", event.ApprovedBy)
	assert.Equal(t, report.CheckedAt, event.ValidatedAt)

	require.Len(t, audit.records, 1)
	persisted := audit.records[0]
	assert.Equal(t, model.OutcomeDispatched, persisted.Outcome)
	assert.Equal(t, event.CorrelationID, persisted.CorrelationID,
		"the record and the event share one correlation ID")
	assert.NotEmpty(t, persisted.CorrelationID)
	assert.Equal(t, "acme/rollout-control", persisted.DispatchTarget)
	assert.Equal(t, persisted, *record)
}

func TestApprovalService_DispatchFailureStillAudited(t *testing.T) {
	sc := newFakeSourceControl()
	sc.addReadyRepo("web-app")
	dispatcher := &fakeDispatcher{err: errors.New("422 no such workflow")}
	audit := &fakeAudit{}
	svc := newApprovalService(sc, dispatcher, audit)

	record, _, err := svc.Approve(context.Background(), "acme", []string{"web-app"}, model.RolloutFull, "alice")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeDispatchFailed))

	require.NotNil(t, record, "the failed record is returned for diagnostics")
	assert.Equal(t, model.OutcomeDispatchFailed, record.Outcome)

	require.Len(t, audit.records, 1, "the decision is audited even when delivery fails")
	assert.Equal(t, model.OutcomeDispatchFailed, audit.records[0].Outcome)
}

func TestApprovalService_AuditFailureIsInternal(t *testing.T) {
	sc := newFakeSourceControl()
	sc.addReadyRepo("web-app")
	dispatcher := &fakeDispatcher{}
	audit := &fakeAudit{appendErr: errors.New("disk full")}
	svc := newApprovalService(sc, dispatcher, audit)

	record, _, err := svc.Approve(context.Background(), "acme", []string{"web-app"}, model.RolloutFull, "alice")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInternal))
	assert.Nil(t, record)
}

func TestApprovalService_RecentRollouts(t *testing.T) {
	audit := &fakeAudit{}
	svc := newApprovalService(newFakeSourceControl(), &fakeDispatcher{}, audit)

	t.Run("no records yields an empty slice", func(t *testing.T) {
		records, err := svc.RecentRollouts(context.Background(), "acme")
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("records are filtered by org, newest first", func(t *testing.T) {
		for _, org := range []string{"acme", "umbrella", "acme"} {
			require.NoError(t, audit.Append(context.Background(), model.ApprovalRecord{ID: org + "-rec", Org: org}))
		}

		records, err := svc.RecentRollouts(context.Background(), "acme")
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("sink failure surfaces as an error", func(t *testing.T) {
		broken := &fakeAudit{listErr: errors.New("db closed")}
		svc := newApprovalService(newFakeSourceControl(), &fakeDispatcher{}, broken)

		_, err := svc.RecentRollouts(context.Background(), "acme")
		assert.Error(t, err)
	})
}
