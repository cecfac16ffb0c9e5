// Package github implements the source-control, identity-provider, and
// dispatcher ports using the go-github library.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.SourceControlClient = (*Client)(nil)
	_ driven.IdentityProvider    = (*Client)(nil)
	_ driven.Dispatcher          = (*Client)(nil)
)

// Client implements the driven GitHub ports. The service-token client
// handles source-control queries and dispatch; identity verification builds
// a short-lived client around the caller's credential instead, so the
// service token never mixes with user credentials.
type Client struct {
	gh            *gh.Client
	httpClient    *http.Client
	baseURL       *url.URL
	dispatchOwner string
	dispatchRepo  string
}

// NewClient creates a GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token, dispatchOwner, dispatchRepo string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{
		gh:            client,
		httpClient:    rateLimitClient,
		baseURL:       client.BaseURL,
		dispatchOwner: dispatchOwner,
		dispatchRepo:  dispatchRepo,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token, dispatchOwner, dispatchRepo string) (*Client, error) {
	client := gh.NewClient(httpClient).WithAuthToken(token)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{
		gh:            client,
		httpClient:    httpClient,
		baseURL:       u,
		dispatchOwner: dispatchOwner,
		dispatchRepo:  dispatchRepo,
	}, nil
}

// GetDefaultBranch resolves the repository and returns its default branch.
// 404 and 403 translate to driven.ErrNotFound so callers can distinguish
// "absent or no access" from upstream failures.
func (c *Client) GetDefaultBranch(ctx context.Context, org, repo string) (string, error) {
	repository, resp, err := c.gh.Repositories.Get(ctx, org, repo)
	if err != nil {
		if isNotFound(resp) {
			return "", fmt.Errorf("%s/%s: %w", org, repo, driven.ErrNotFound)
		}
		return "", fmt.Errorf("fetching repository %s/%s: %w", org, repo, err)
	}

	logRateLimit(resp, org+"/"+repo, 0, 1)

	branch := repository.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return branch, nil
}

// HasFile reports whether path exists on the repository's default branch.
func (c *Client) HasFile(ctx context.Context, org, repo, path string) (bool, error) {
	_, _, resp, err := c.gh.Repositories.GetContents(ctx, org, repo, path, nil)
	if err != nil {
		if isNotFound(resp) {
			return false, nil
		}
		return false, fmt.Errorf("fetching %s in %s/%s: %w", path, org, repo, err)
	}

	logRateLimit(resp, org+"/"+repo+"/"+path, 0, 1)
	return true, nil
}

// ListRecentCompletedRuns returns up to limit most recent completed
// workflow runs. A 404 means the repository has no workflow history, which
// is not an error.
func (c *Client) ListRecentCompletedRuns(ctx context.Context, org, repo string, limit int) ([]model.WorkflowRun, error) {
	opts := &gh.ListWorkflowRunsOptions{
		Status:      "completed",
		ListOptions: gh.ListOptions{PerPage: limit},
	}

	runs, resp, err := c.gh.Actions.ListRepositoryWorkflowRuns(ctx, org, repo, opts)
	if err != nil {
		if isNotFound(resp) {
			return []model.WorkflowRun{}, nil
		}
		return nil, fmt.Errorf("listing workflow runs for %s/%s: %w", org, repo, err)
	}

	logRateLimit(resp, org+"/"+repo+"/runs", 0, len(runs.WorkflowRuns))

	result := make([]model.WorkflowRun, 0, len(runs.WorkflowRuns))
	for _, run := range runs.WorkflowRuns {
		result = append(result, mapWorkflowRun(run))
	}
	return result, nil
}

// HasBranchProtection reports whether protection rules exist on branch.
// Returns false, nil when the branch is not protected (404) or when the
// token lacks permission to read protection rules (403).
func (c *Client) HasBranchProtection(ctx context.Context, org, repo, branch string) (bool, error) {
	_, resp, err := c.gh.Repositories.GetBranchProtection(ctx, org, repo, branch)
	if err != nil {
		if isNotFound(resp) {
			return false, nil
		}
		return false, fmt.Errorf("fetching branch protection for %s/%s branch %s: %w", org, repo, branch, err)
	}

	logRateLimit(resp, org+"/"+repo+"/protection", 0, 1)
	return true, nil
}

// ListOrgRepositories lists the organization's repositories, falling back
// to the user listing endpoint only when org resolves to a user account
// (the org endpoint answers 404). Any other org-listing failure propagates;
// the user endpoint sees a public-only subset for real organizations, so
// degrading to it on a transient error would produce a silently wrong
// listing. Pagination is handled automatically.
func (c *Client) ListOrgRepositories(ctx context.Context, org string) ([]model.OrgRepository, error) {
	repos, err := c.listByOrg(ctx, org)
	if err == nil {
		return repos, nil
	}
	if !isNotFoundErr(err) {
		return nil, err
	}

	repos, userErr := c.listByUser(ctx, org)
	if userErr != nil {
		return nil, fmt.Errorf("listing repositories for %s: %w", org, err)
	}
	return repos, nil
}

func (c *Client) listByOrg(ctx context.Context, org string) ([]model.OrgRepository, error) {
	opts := &gh.RepositoryListByOrgOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []model.OrgRepository
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing org repositories for %s (page %d): %w", org, opts.Page, err)
		}

		logRateLimit(resp, org+"/repos", opts.Page, len(repos))

		for _, repo := range repos {
			all = append(all, mapOrgRepository(repo))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.OrgRepository{}
	}
	return all, nil
}

func (c *Client) listByUser(ctx context.Context, user string) ([]model.OrgRepository, error) {
	opts := &gh.RepositoryListByUserOptions{
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	var all []model.OrgRepository
	for {
		repos, resp, err := c.gh.Repositories.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, fmt.Errorf("listing user repositories for %s (page %d): %w", user, opts.Page, err)
		}

		for _, repo := range repos {
			all = append(all, mapOrgRepository(repo))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	if all == nil {
		all = []model.OrgRepository{}
	}
	return all, nil
}

// VerifyCredential exchanges an opaque credential for the authenticated
// principal and its organization memberships. The credential is used only
// as the bearer token of a throwaway client and never appears in errors.
func (c *Client) VerifyCredential(ctx context.Context, credential string) (*model.Identity, error) {
	userClient := gh.NewClient(c.httpClient).WithAuthToken(credential)
	userClient.BaseURL = c.baseURL

	user, _, err := userClient.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("resolving authenticated user: %w", err)
	}

	orgs, err := listOrgHandles(ctx, userClient)
	if err != nil {
		return nil, err
	}

	return &model.Identity{
		ID:     user.GetID(),
		Handle: user.GetLogin(),
		Name:   user.GetName(),
		Email:  user.GetEmail(),
		Orgs:   orgs,
	}, nil
}

// listOrgHandles pages through the authenticated user's organizations.
func listOrgHandles(ctx context.Context, client *gh.Client) ([]string, error) {
	opts := &gh.ListOptions{PerPage: 100}

	handles := []string{}
	for {
		orgs, resp, err := client.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, fmt.Errorf("listing organization memberships: %w", err)
		}

		for _, org := range orgs {
			handles = append(handles, org.GetLogin())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return handles, nil
}

// Dispatch delivers one repository_dispatch event to the configured target.
func (c *Client) Dispatch(ctx context.Context, eventType string, event model.DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling dispatch payload: %w", err)
	}
	raw := json.RawMessage(payload)

	_, resp, err := c.gh.Repositories.Dispatch(ctx, c.dispatchOwner, c.dispatchRepo, gh.DispatchRequestOptions{
		EventType:     eventType,
		ClientPayload: &raw,
	})
	if err != nil {
		return fmt.Errorf("dispatching %s event to %s: %w", eventType, c.Target(), err)
	}

	logRateLimit(resp, c.Target()+"/dispatches", 0, 1)
	return nil
}

// Target returns the configured owner/repository dispatch target.
func (c *Client) Target() string {
	return c.dispatchOwner + "/" + c.dispatchRepo
}

// mapWorkflowRun converts a go-github WorkflowRun to the domain model.
// UpdatedAt is the closest thing the API exposes to a completion time for
// completed runs.
func mapWorkflowRun(run *gh.WorkflowRun) model.WorkflowRun {
	return model.WorkflowRun{
		Name:        run.GetName(),
		Conclusion:  run.GetConclusion(),
		CompletedAt: run.GetUpdatedAt().Time,
	}
}

// mapOrgRepository converts a go-github Repository to the listing model.
func mapOrgRepository(repo *gh.Repository) model.OrgRepository {
	branch := repo.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}
	return model.OrgRepository{
		Name:          repo.GetName(),
		Language:      repo.GetLanguage(),
		DefaultBranch: branch,
	}
}

// isNotFound reports whether the response indicates a missing or
// inaccessible resource.
func isNotFound(resp *gh.Response) bool {
	return resp != nil && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden)
}

// isNotFoundErr reports whether err is a go-github error response with
// status 404.
func isNotFoundErr(err error) bool {
	var ghErr *gh.ErrorResponse
	return errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
