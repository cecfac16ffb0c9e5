package model

import "time"

// RepoAdoption records whether one repository carries the standardized
// dependency workflow on its default branch.
type RepoAdoption struct {
	Repo    string
	Adopted bool
}

// AdoptionReport summarizes standardized-workflow adoption across an
// organization's JavaScript and TypeScript repositories.
type AdoptionReport struct {
	Org          string
	WorkflowPath string
	Total        int
	Adopted      int
	Repositories []RepoAdoption
	CheckedAt    time.Time
}
