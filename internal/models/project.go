// Package models defines the records the platform persists: projects, their
// versions and builds, and the per-project notification hooks.
package models

import "time"

// Project is a documentation project hosted on the platform.
type Project struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	RepoURL       string    `json:"repo_url"`
	DefaultBranch string    `json:"default_branch,omitempty"`
	// Skip disables builds for the project.
	Skip      bool      `json:"skip"`
	CreatedAt time.Time `json:"created_at"`
}

// Version is a buildable ref (branch or tag) of a project.
type Version struct {
	ID          int64  `json:"id"`
	ProjectID   int64  `json:"project_id"`
	Slug        string `json:"slug"`
	VerboseName string `json:"verbose_name"`
	Identifier  string `json:"identifier"`
	Active      bool   `json:"active"`
}

// DisplayName returns the verbose name, falling back to the slug.
func (v *Version) DisplayName() string {
	if v.VerboseName != "" {
		return v.VerboseName
	}
	return v.Slug
}
