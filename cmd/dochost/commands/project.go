package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// ProjectCmd groups the project management commands.
type ProjectCmd struct {
	Add     ProjectAddCmd  `cmd:"" help:"Register a project"`
	List    ProjectListCmd `cmd:"" help:"List projects"`
	Skip    ProjectSkipCmd `cmd:"" help:"Disable or re-enable builds for a project"`
	Version VersionCmd     `cmd:"" help:"Manage project versions"`
}

// ProjectAddCmd implements 'project add'.
type ProjectAddCmd struct {
	Slug          string `arg:"" help:"Project slug"`
	Repo          string `required:"" help:"Repository URL"`
	Name          string `help:"Display name (defaults to the slug)"`
	DefaultBranch string `name:"default-branch" default:"main" help:"Default branch; also used for the 'latest' version"`
	NoLatest      bool   `name:"no-latest" help:"Do not create the 'latest' version"`
}

func (c *ProjectAddCmd) Run(g *Global, root *CLI) error {
	if c.Slug == "" {
		return dherrors.ValidationFailed("slug", "must not be empty")
	}
	if c.Repo == "" {
		return dherrors.ValidationFailed("repo", "must not be empty")
	}
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p := &models.Project{Name: c.Name, Slug: c.Slug, RepoURL: c.Repo, DefaultBranch: c.DefaultBranch}
		if p.Name == "" {
			p.Name = c.Slug
		}
		if err := store.CreateProject(ctx, p); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Created project %s (id %d)\n", p.Slug, p.ID)

		if c.NoLatest {
			return nil
		}
		v := &models.Version{ProjectID: p.ID, Slug: "latest", VerboseName: "latest", Identifier: p.DefaultBranch, Active: true}
		if err := store.CreateVersion(ctx, v); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Created version %s (id %d)\n", v.Slug, v.ID)
		return nil
	})
}

// ProjectListCmd implements 'project list'.
type ProjectListCmd struct{}

func (c *ProjectListCmd) Run(g *Global, root *CLI) error {
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		projects, err := store.ListProjects(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSLUG\tNAME\tREPOSITORY\tSKIP")
		for _, p := range projects {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\n", p.ID, p.Slug, p.Name, p.RepoURL, p.Skip)
		}
		return w.Flush()
	})
}

// ProjectSkipCmd implements 'project skip'.
type ProjectSkipCmd struct {
	Project string `arg:"" help:"Project ID or slug"`
	Off     bool   `help:"Re-enable builds"`
}

func (c *ProjectSkipCmd) Run(g *Global, root *CLI) error {
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		p.Skip = !c.Off
		if err := store.UpdateProject(ctx, p); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Project %s skip=%t\n", p.Slug, p.Skip)
		return nil
	})
}

// VersionCmd groups the version commands.
type VersionCmd struct {
	Add  VersionAddCmd  `cmd:"" help:"Add a version to a project"`
	List VersionListCmd `cmd:"" help:"List a project's versions"`
}

// VersionAddCmd implements 'project version add'.
type VersionAddCmd struct {
	Project    string `arg:"" help:"Project ID or slug"`
	Slug       string `arg:"" help:"Version slug"`
	Identifier string `help:"Branch or tag to build (defaults to the slug)"`
	Name       string `help:"Verbose name (defaults to the slug)"`
	Inactive   bool   `help:"Create the version inactive"`
}

func (c *VersionAddCmd) Run(g *Global, root *CLI) error {
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		v := &models.Version{
			ProjectID:   p.ID,
			Slug:        c.Slug,
			VerboseName: c.Name,
			Identifier:  c.Identifier,
			Active:      !c.Inactive,
		}
		if v.VerboseName == "" {
			v.VerboseName = c.Slug
		}
		if v.Identifier == "" {
			v.Identifier = c.Slug
		}
		if err := store.CreateVersion(ctx, v); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(g.out(), "Created version %s (id %d)\n", v.Slug, v.ID)
		return nil
	})
}

// VersionListCmd implements 'project version list'.
type VersionListCmd struct {
	Project string `arg:"" help:"Project ID or slug"`
}

func (c *VersionListCmd) Run(g *Global, root *CLI) error {
	return withStore(root, func(ctx context.Context, store storage.Store) error {
		p, err := lookupProject(ctx, store, c.Project)
		if err != nil {
			return err
		}
		versions, err := store.ListVersions(ctx, p.ID)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(g.out(), 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "ID\tSLUG\tIDENTIFIER\tACTIVE")
		for _, v := range versions {
			_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%t\n", v.ID, v.Slug, v.Identifier, v.Active)
		}
		return w.Flush()
	})
}

// withStore loads the configuration and runs fn against the opened store.
func withStore(root *CLI, fn func(ctx context.Context, store storage.Store) error) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(context.Background(), store)
}
