package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// manifestPath is the dependency manifest every rollout candidate must
// carry at its repository root.
const manifestPath = "package.json"

// recentRunLimit bounds the workflow-run page size for the recent-failure
// check.
const recentRunLimit = 5

// failureWindow is how far back a failing workflow run still blocks
// readiness.
const failureWindow = 24 * time.Hour

// ReadinessService inspects repositories against the rollout eligibility
// rules. Reports are computed fresh on every call and never cached:
// repository state can change between checks.
type ReadinessService struct {
	sc          driven.SourceControlClient
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger

	now func() time.Time
}

// NewReadinessService creates a ReadinessService. concurrency bounds the
// per-repository fan-out so evaluation respects the upstream API's own
// rate limits; timeout bounds every individual external call.
func NewReadinessService(sc driven.SourceControlClient, concurrency int, timeout time.Duration, logger *slog.Logger) *ReadinessService {
	return &ReadinessService{
		sc:          sc,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Evaluate checks every repository in repos and partitions them into
// ready/not-ready with reasons. Per-repository checks run concurrently with
// a bounded fan-out and all complete before the aggregate report is
// returned; there is no partial result. A repository is ready iff it
// accumulated zero blocking issues. Advisory issues are retained but never
// affect readiness.
func (s *ReadinessService) Evaluate(ctx context.Context, org string, repos []string) (*model.ReadinessReport, error) {
	results := make([]model.RepositoryReadiness, len(repos))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, repo := range repos {
		g.Go(func() error {
			results[i] = s.checkRepository(gctx, org, repo)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &model.ReadinessReport{
		Org:          org,
		Total:        len(repos),
		Repositories: results,
		CheckedAt:    s.now().UTC(),
	}
	for _, r := range results {
		if r.Ready {
			report.Ready++
		}
	}
	report.AllReady = report.Ready == report.Total

	s.logger.Info("readiness evaluated",
		"org", org,
		"total", report.Total,
		"ready", report.Ready,
		"all_ready", report.AllReady,
	)

	return report, nil
}

// checkRepository runs the four eligibility checks for one repository.
// Checks are read-only and order-independent; a missing repository
// short-circuits the rest. Unexpected upstream errors are attached to the
// issue list as blocking rather than silently dropped.
func (s *ReadinessService) checkRepository(ctx context.Context, org, repo string) model.RepositoryReadiness {
	result := model.RepositoryReadiness{Repo: repo}

	block := func(format string, args ...any) {
		result.Issues = append(result.Issues, model.ReadinessIssue{
			Severity: model.SeverityBlocking,
			Message:  fmt.Sprintf(format, args...),
		})
	}
	advise := func(format string, args ...any) {
		result.Issues = append(result.Issues, model.ReadinessIssue{
			Severity: model.SeverityAdvisory,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	branch, err := s.getDefaultBranch(ctx, org, repo)
	switch {
	case errors.Is(err, driven.ErrNotFound):
		block("not found or no access")
		return result
	case err != nil:
		block("repository lookup failed: %v", err)
		return result
	}

	hasManifest, err := s.hasFile(ctx, org, repo, manifestPath)
	switch {
	case err != nil:
		block("manifest check failed: %v", err)
	case !hasManifest:
		block("missing %s", manifestPath)
	}

	runs, err := s.listRecentRuns(ctx, org, repo)
	if err != nil {
		block("workflow history check failed: %v", err)
	} else if n := countRecentFailures(runs, s.now()); n > 0 {
		block("%d workflow failure(s) in the last 24h", n)
	}

	protected, err := s.hasBranchProtection(ctx, org, repo, branch)
	switch {
	case err != nil:
		block("branch protection check failed: %v", err)
	case !protected:
		advise("no branch protection on %s", branch)
	}

	result.Ready = result.BlockingCount() == 0
	return result
}

// countRecentFailures counts runs with a failing conclusion completed
// within the failure window. Absence of workflow history is not an error.
func countRecentFailures(runs []model.WorkflowRun, now time.Time) int {
	n := 0
	for _, run := range runs {
		if run.Failed() && now.Sub(run.CompletedAt) <= failureWindow {
			n++
		}
	}
	return n
}

func (s *ReadinessService) getDefaultBranch(ctx context.Context, org, repo string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sc.GetDefaultBranch(ctx, org, repo)
}

func (s *ReadinessService) hasFile(ctx context.Context, org, repo, path string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sc.HasFile(ctx, org, repo, path)
}

func (s *ReadinessService) listRecentRuns(ctx context.Context, org, repo string) ([]model.WorkflowRun, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sc.ListRecentCompletedRuns(ctx, org, repo, recentRunLimit)
}

func (s *ReadinessService) hasBranchProtection(ctx context.Context, org, repo, branch string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.sc.HasBranchProtection(ctx, org, repo, branch)
}
