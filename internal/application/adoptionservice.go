package application

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/rollouthub/internal/apperror"
	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// adoptionWorkflowPath is where the standardized dependency workflow lives
// once a repository has merged it.
const adoptionWorkflowPath = ".github/workflows/deps-install.yml"

// AdoptionService reports which of an organization's JavaScript and
// TypeScript repositories have merged the standardized dependency workflow.
type AdoptionService struct {
	sc          driven.SourceControlClient
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger

	now func() time.Time
}

// NewAdoptionService creates an AdoptionService with the required dependencies.
func NewAdoptionService(sc driven.SourceControlClient, concurrency int, timeout time.Duration, logger *slog.Logger) *AdoptionService {
	return &AdoptionService{
		sc:          sc,
		concurrency: concurrency,
		timeout:     timeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Report lists the org's JS/TS repositories and checks each for the
// standardized workflow file. A failure listing the org's repositories
// aborts the whole computation; a per-repository lookup failure marks just
// that repository as not adopted.
func (s *AdoptionService) Report(ctx context.Context, org string) (*model.AdoptionReport, error) {
	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	all, err := s.sc.ListOrgRepositories(listCtx, org)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeUpstreamUnavailable, "failed to list organization repositories", err)
	}

	var candidates []model.OrgRepository
	for _, repo := range all {
		if repo.Language == "JavaScript" || repo.Language == "TypeScript" {
			candidates = append(candidates, repo)
		}
	}

	results := make([]model.RepoAdoption, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, repo := range candidates {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			adopted, err := s.sc.HasFile(checkCtx, org, repo.Name, adoptionWorkflowPath)
			if err != nil {
				s.logger.Warn("adoption check failed, treating as not adopted",
					"org", org,
					"repo", repo.Name,
					"error", err,
				)
				adopted = false
			}
			results[i] = model.RepoAdoption{Repo: repo.Name, Adopted: adopted}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &model.AdoptionReport{
		Org:          org,
		WorkflowPath: adoptionWorkflowPath,
		Total:        len(results),
		Repositories: results,
		CheckedAt:    s.now().UTC(),
	}
	if report.Repositories == nil {
		report.Repositories = []model.RepoAdoption{}
	}
	for _, r := range results {
		if r.Adopted {
			report.Adopted++
		}
	}

	s.logger.Info("adoption report computed",
		"org", org,
		"adopted", report.Adopted,
		"total", report.Total,
	)

	return report, nil
}
