package storage

import (
	"database/sql"
	"time"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/models"
)

const (
	projectSelect = "SELECT id, name, slug, repo_url, default_branch, skip, created_at FROM projects"
	versionSelect = "SELECT id, project_id, slug, verbose_name, identifier, active FROM versions"
	buildSelect   = "SELECT id, project_id, version_id, type, state, success, error, commit_sha, exit_code, length, date FROM builds"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(r rowScanner) (*models.Project, error) {
	var p models.Project
	var created int64
	if err := r.Scan(&p.ID, &p.Name, &p.Slug, &p.RepoURL, &p.DefaultBranch, &p.Skip, &created); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(0, created)
	return &p, nil
}

func scanVersion(r rowScanner) (*models.Version, error) {
	var v models.Version
	if err := r.Scan(&v.ID, &v.ProjectID, &v.Slug, &v.VerboseName, &v.Identifier, &v.Active); err != nil {
		return nil, err
	}
	return &v, nil
}

func scanBuild(r rowScanner) (*models.Build, error) {
	var b models.Build
	var state string
	var length, date int64
	if err := r.Scan(&b.ID, &b.ProjectID, &b.VersionID, &b.Type, &state, &b.Success, &b.Error,
		&b.Commit, &b.ExitCode, &length, &date); err != nil {
		return nil, err
	}
	b.State = models.BuildState(state)
	b.Length = time.Duration(length)
	b.Date = time.Unix(0, date)
	return &b, nil
}

func requireAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return dherrors.StorageError("rows affected", err)
	}
	if n == 0 {
		return dherrors.NotFound(kind, id)
	}
	return nil
}
