package application_test

import (
	"context"
	"sync"

	"github.com/ericfisherdev/rollouthub/internal/domain/model"
	"github.com/ericfisherdev/rollouthub/internal/domain/port/driven"
)

// repoState describes one repository as seen by the fake source-control
// client. Zero value is a repository that exists with branch "main", no
// files, no runs, and no protection.
type repoState struct {
	branch    string
	files     map[string]bool
	runs      []model.WorkflowRun
	protected bool
	missing   bool

	branchErr error
	fileErr   error
	runsErr   error
	protErr   error
}

// fakeSourceControl implements driven.SourceControlClient over an in-memory
// repository map. Safe for the concurrent fan-out in readiness evaluation.
type fakeSourceControl struct {
	mu       sync.Mutex
	repos    map[string]*repoState
	orgRepos []model.OrgRepository
	listErr  error

	fileCalls int
}

func newFakeSourceControl() *fakeSourceControl {
	return &fakeSourceControl{repos: make(map[string]*repoState)}
}

// addReadyRepo registers a repository that passes every readiness check.
func (f *fakeSourceControl) addReadyRepo(name string) *repoState {
	state := &repoState{
		branch:    "main",
		files:     map[string]bool{"package.json": true},
		protected: true,
	}
	f.repos[name] = state
	return state
}

func (f *fakeSourceControl) state(repo string) (*repoState, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.repos[repo]
	return state, ok
}

func (f *fakeSourceControl) GetDefaultBranch(_ context.Context, _, repo string) (string, error) {
	state, ok := f.state(repo)
	if !ok || state.missing {
		return "", driven.ErrNotFound
	}
	if state.branchErr != nil {
		return "", state.branchErr
	}
	if state.branch == "" {
		return "main", nil
	}
	return state.branch, nil
}

func (f *fakeSourceControl) HasFile(_ context.Context, _, repo, path string) (bool, error) {
	f.mu.Lock()
	f.fileCalls++
	f.mu.Unlock()

	state, ok := f.state(repo)
	if !ok {
		return false, nil
	}
	if state.fileErr != nil {
		return false, state.fileErr
	}
	return state.files[path], nil
}

func (f *fakeSourceControl) ListRecentCompletedRuns(_ context.Context, _, repo string, _ int) ([]model.WorkflowRun, error) {
	state, ok := f.state(repo)
	if !ok {
		return nil, nil
	}
	if state.runsErr != nil {
		return nil, state.runsErr
	}
	return state.runs, nil
}

func (f *fakeSourceControl) HasBranchProtection(_ context.Context, _, repo, _ string) (bool, error) {
	state, ok := f.state(repo)
	if !ok {
		return false, nil
	}
	if state.protErr != nil {
		return false, state.protErr
	}
	return state.protected, nil
}

func (f *fakeSourceControl) ListOrgRepositories(_ context.Context, _ string) ([]model.OrgRepository, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.orgRepos, nil
}

// fakeDispatcher implements driven.Dispatcher and records every delivered
// event.
type fakeDispatcher struct {
	mu     sync.Mutex
	events []model.DispatchEvent
	types  []string
	err    error
}

func (f *fakeDispatcher) Dispatch(_ context.Context, eventType string, event model.DispatchEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.types = append(f.types, eventType)
	f.events = append(f.events, event)
	return nil
}

func (f *fakeDispatcher) Target() string { return "acme/rollout-control" }

// fakeAudit implements driven.AuditSink in memory.
type fakeAudit struct {
	mu        sync.Mutex
	records   []model.ApprovalRecord
	decisions []model.AuthzDecision

	appendErr   error
	decisionErr error
	listErr     error
}

func (f *fakeAudit) Append(_ context.Context, record model.ApprovalRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, record)
	return nil
}

func (f *fakeAudit) AppendDecision(_ context.Context, decision model.AuthzDecision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decisionErr != nil {
		return f.decisionErr
	}
	f.decisions = append(f.decisions, decision)
	return nil
}

func (f *fakeAudit) ListRecent(_ context.Context, org string, limit int) ([]model.ApprovalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.ApprovalRecord
	for i := len(f.records) - 1; i >= 0 && len(out) < limit; i-- {
		if f.records[i].Org == org {
			out = append(out, f.records[i])
		}
	}
	return out, nil
}

// fakeIdentityProvider implements driven.IdentityProvider.
type fakeIdentityProvider struct {
	identity *model.Identity
	err      error

	gotCredential string
	calls         int
}

func (f *fakeIdentityProvider) VerifyCredential(_ context.Context, credential string) (*model.Identity, error) {
	f.calls++
	f.gotCredential = credential
	if f.err != nil {
		return nil, f.err
	}
	clone := *f.identity
	return &clone, nil
}
