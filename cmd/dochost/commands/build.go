package commands

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/dochost/internal/build"
	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/models"
)

// BuildCmd implements the 'build' command. The update task runs inline and
// its notifications are sent before the command returns.
type BuildCmd struct {
	Project     string `arg:"" help:"Project ID or slug"`
	VersionID   int64  `name:"version-id" help:"Version to build (defaults to the project's default branch version)"`
	BuildID     int64  `name:"build-id" help:"Existing build record to reuse"`
	NoRecord    bool   `name:"no-record" help:"Do not persist build progress"`
	Intersphinx bool   `help:"Generate intersphinx data" default:"true" negatable:""`
	Force       bool   `help:"Rebuild even when the output is current"`
}

func (b *BuildCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{eager: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	project, err := lookupProject(ctx, a.store, b.Project)
	if err != nil {
		return err
	}

	res := a.task.Delay(ctx, project.ID, build.Options{
		BuildID:     b.BuildID,
		VersionID:   b.VersionID,
		Record:      !b.NoRecord,
		Intersphinx: b.Intersphinx,
		Force:       b.Force,
	})
	if err := res.Wait(ctx); err != nil {
		return err
	}
	if !res.Successful() {
		return res.Err()
	}

	out := g.out()
	ok, _ := res.Result().(bool)
	var latest *models.Build
	if !b.NoRecord {
		if latest, err = a.latestBuild(ctx, project, b.VersionID); err != nil {
			return err
		}
	}
	switch {
	case latest == nil:
		_, _ = fmt.Fprintf(out, "Build of %s finished: success=%t\n", project.Slug, ok)
	case ok:
		_, _ = fmt.Fprintf(out, "Build %d of %s passed at %s\n", latest.ID, project.Slug, latest.ShortCommit())
	default:
		_, _ = fmt.Fprintf(out, "Build %d of %s failed: %s\n", latest.ID, project.Slug, latest.Error)
	}
	a.printOutbox(out)

	if !ok {
		return dherrors.New(dherrors.CategoryBuild, dherrors.SeverityError, "documentation build failed").
			WithContext("project", project.Slug)
	}
	return nil
}

// latestBuild returns the newest build of the requested version, or of the
// version the task picks by default.
func (a *app) latestBuild(ctx context.Context, project *models.Project, versionID int64) (*models.Build, error) {
	version, err := a.task.GetVersion(ctx, project, versionID)
	if err != nil {
		return nil, err
	}
	return a.store.LatestBuild(ctx, version.ID)
}
