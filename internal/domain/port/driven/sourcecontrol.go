package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
)

// ErrNotFound indicates the requested repository, file, or protection rule
// does not exist or is not accessible with the configured credentials.
// Adapters translate provider-specific 404/403 responses into this sentinel
// so services can distinguish "absent" from "upstream broken".
var ErrNotFound = errors.New("not found or no access")

// SourceControlClient defines the driven port for read-only queries against
// the source-control provider. All methods honor ctx cancellation; callers
// bound every call with the configured external timeout.
type SourceControlClient interface {
	// GetDefaultBranch resolves the repository and returns its default
	// branch name. Returns ErrNotFound for missing/inaccessible repos.
	GetDefaultBranch(ctx context.Context, org, repo string) (string, error)

	// HasFile reports whether path exists at the repository root tree of
	// the default branch.
	HasFile(ctx context.Context, org, repo, path string) (bool, error)

	// ListRecentCompletedRuns returns up to limit most recent completed
	// workflow runs. An empty result is not an error; repositories without
	// workflow history simply have no runs.
	ListRecentCompletedRuns(ctx context.Context, org, repo string, limit int) ([]model.WorkflowRun, error)

	// HasBranchProtection reports whether protection rules exist on the
	// given branch. Missing protection is reported as false, nil.
	HasBranchProtection(ctx context.Context, org, repo, branch string) (bool, error)

	// ListOrgRepositories lists the organization's repositories with name,
	// primary language, and default branch. Falls back to the user
	// endpoint when org resolves to a user account.
	ListOrgRepositories(ctx context.Context, org string) ([]model.OrgRepository, error)
}
