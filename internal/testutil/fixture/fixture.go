// Package fixture creates records in a fresh in-memory store for tests.
package fixture

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

var seq atomic.Int64

// Fixture owns an in-memory SQLite store closed at test cleanup.
type Fixture struct {
	t     testing.TB
	Store *storage.SQLiteStore
}

// New opens a fresh store for t.
func New(t testing.TB) *Fixture {
	t.Helper()
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("open fixture store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return &Fixture{t: t, Store: store}
}

func (f *Fixture) ctx() context.Context {
	return context.Background()
}

// Project creates a project with a unique slug. Opts run before insertion.
func (f *Fixture) Project(opts ...func(*models.Project)) *models.Project {
	f.t.Helper()
	n := seq.Add(1)
	p := &models.Project{
		Name:          fmt.Sprintf("Project %d", n),
		Slug:          fmt.Sprintf("project-%d", n),
		RepoURL:       fmt.Sprintf("https://git.example.org/project-%d.git", n),
		DefaultBranch: "main",
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := f.Store.CreateProject(f.ctx(), p); err != nil {
		f.t.Fatalf("create project: %v", err)
	}
	return p
}

// Version creates an active version of p tracking the project's default branch.
func (f *Fixture) Version(p *models.Project, opts ...func(*models.Version)) *models.Version {
	f.t.Helper()
	v := &models.Version{
		ProjectID:   p.ID,
		Slug:        "latest",
		VerboseName: "latest",
		Identifier:  p.DefaultBranch,
		Active:      true,
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := f.Store.CreateVersion(f.ctx(), v); err != nil {
		f.t.Fatalf("create version: %v", err)
	}
	return v
}

// Build creates a triggered build of v.
func (f *Fixture) Build(v *models.Version, opts ...func(*models.Build)) *models.Build {
	f.t.Helper()
	b := &models.Build{
		ProjectID: v.ProjectID,
		VersionID: v.ID,
		Type:      models.BuildTypeHTML,
		State:     models.BuildStateTriggered,
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := f.Store.CreateBuild(f.ctx(), b); err != nil {
		f.t.Fatalf("create build: %v", err)
	}
	return b
}

// EmailHook subscribes email to p's build notifications.
func (f *Fixture) EmailHook(p *models.Project, email string) *models.EmailHook {
	f.t.Helper()
	h := &models.EmailHook{ProjectID: p.ID, Email: email}
	if err := f.Store.CreateEmailHook(f.ctx(), h); err != nil {
		f.t.Fatalf("create email hook: %v", err)
	}
	return h
}

// WebHook registers url for p's build notifications.
func (f *Fixture) WebHook(p *models.Project, url string) *models.WebHook {
	f.t.Helper()
	h := &models.WebHook{ProjectID: p.ID, URL: url}
	if err := f.Store.CreateWebHook(f.ctx(), h); err != nil {
		f.t.Fatalf("create webhook: %v", err)
	}
	return h
}
