package model

import "time"

// WorkflowRun is one completed CI workflow run as reported by the
// source-control provider.
type WorkflowRun struct {
	Name        string
	Conclusion  string
	CompletedAt time.Time
}

// Failed reports whether the run completed with a failing conclusion.
func (r WorkflowRun) Failed() bool {
	switch r.Conclusion {
	case "failure", "timed_out", "startup_failure":
		return true
	}
	return false
}

// OrgRepository is a repository listed from an organization, with the
// fields the adoption report needs.
type OrgRepository struct {
	Name          string
	Language      string
	DefaultBranch string
}
