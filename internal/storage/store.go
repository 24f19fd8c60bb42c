// Package storage persists projects, versions, builds and notification hooks.
package storage

import (
	"context"
	"time"

	"git.home.luguber.info/inful/dochost/internal/models"
)

// Store provides persistence for the platform's records.
// Lookups of missing rows return a not_found categorized error.
type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context) ([]*models.Project, error)

	CreateVersion(ctx context.Context, v *models.Version) error
	GetVersion(ctx context.Context, id int64) (*models.Version, error)
	// ListVersions returns the project's versions ordered by ID.
	ListVersions(ctx context.Context, projectID int64) ([]*models.Version, error)

	CreateBuild(ctx context.Context, b *models.Build) error
	GetBuild(ctx context.Context, id int64) (*models.Build, error)
	UpdateBuild(ctx context.Context, b *models.Build) error
	// LatestBuild returns the most recent build of a version, or nil when none exists.
	LatestBuild(ctx context.Context, versionID int64) (*models.Build, error)
	// ListUnfinishedBuilds returns builds not in a terminal state created before the given time.
	ListUnfinishedBuilds(ctx context.Context, before time.Time) ([]*models.Build, error)

	CreateEmailHook(ctx context.Context, h *models.EmailHook) error
	ListEmailHooks(ctx context.Context, projectID int64) ([]*models.EmailHook, error)
	CreateWebHook(ctx context.Context, h *models.WebHook) error
	ListWebHooks(ctx context.Context, projectID int64) ([]*models.WebHook, error)

	Close() error
}
