package models

import (
	"fmt"
	"time"
)

// BuildState is the pipeline position of a build.
type BuildState string

const (
	BuildStateTriggered  BuildState = "triggered"
	BuildStateCloning    BuildState = "cloning"
	BuildStateInstalling BuildState = "installing"
	BuildStateBuilding   BuildState = "building"
	BuildStateFinished   BuildState = "finished"
)

// IsTerminal returns true if the state represents a final state.
func (s BuildState) IsTerminal() bool {
	return s == BuildStateFinished
}

// BuildTypeHTML is the only build type produced by the pipeline.
const BuildTypeHTML = "html"

// Build is one execution attempt of the documentation pipeline for a version.
type Build struct {
	ID        int64         `json:"id"`
	ProjectID int64         `json:"project_id"`
	VersionID int64         `json:"version_id"`
	Type      string        `json:"type"`
	State     BuildState    `json:"state"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
	Commit    string        `json:"commit,omitempty"`
	ExitCode  int           `json:"exit_code"`
	Length    time.Duration `json:"length"`
	Date      time.Time     `json:"date"`
}

// ShortCommit returns the first eight characters of the commit.
func (b *Build) ShortCommit() string {
	if len(b.Commit) > 8 {
		return b.Commit[:8]
	}
	return b.Commit
}

// Path returns the dashboard path of the build for the given project slug.
func (b *Build) Path(projectSlug string) string {
	return fmt.Sprintf("/projects/%s/builds/%d/", projectSlug, b.ID)
}
