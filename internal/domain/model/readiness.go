package model

import "time"

// IssueSeverity distinguishes blocking readiness issues from advisory ones.
type IssueSeverity string

const (
	SeverityBlocking IssueSeverity = "blocking"
	SeverityAdvisory IssueSeverity = "advisory"
)

// ReadinessIssue is a single finding against a repository.
type ReadinessIssue struct {
	Severity IssueSeverity
	Message  string
}

// RepositoryReadiness is the per-repository outcome of a readiness check.
// Ready is true iff the repository accumulated zero blocking issues;
// advisory issues are retained in Issues either way.
type RepositoryReadiness struct {
	Repo   string
	Ready  bool
	Issues []ReadinessIssue
}

// BlockingCount returns the number of blocking issues.
func (r RepositoryReadiness) BlockingCount() int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == SeverityBlocking {
			n++
		}
	}
	return n
}

// ReadinessReport is the aggregate result of evaluating a repository set.
// Computed fresh per request; repository state can change between checks,
// so reports are never cached or reused across calls.
type ReadinessReport struct {
	Org          string
	Total        int
	Ready        int
	AllReady     bool
	Repositories []RepositoryReadiness
	CheckedAt    time.Time
}
