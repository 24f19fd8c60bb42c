package storage

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (and migrates) a SQLite database.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	PRAGMA foreign_keys = ON;
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		repo_url TEXT NOT NULL DEFAULT '',
		default_branch TEXT NOT NULL DEFAULT '',
		skip INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS versions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		slug TEXT NOT NULL,
		verbose_name TEXT NOT NULL DEFAULT '',
		identifier TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		UNIQUE(project_id, slug)
	);
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		version_id INTEGER NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		state TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 1,
		error TEXT NOT NULL DEFAULT '',
		commit_sha TEXT NOT NULL DEFAULT '',
		exit_code INTEGER NOT NULL DEFAULT 0,
		length INTEGER NOT NULL DEFAULT 0,
		date INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_version ON builds(version_id, date);
	CREATE INDEX IF NOT EXISTS idx_builds_state ON builds(state);
	CREATE TABLE IF NOT EXISTS email_hooks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		email TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS web_hooks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		url TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateProject inserts a project and assigns its ID.
func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (name, slug, repo_url, default_branch, skip, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.Name, p.Slug, p.RepoURL, p.DefaultBranch, p.Skip, p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return dherrors.StorageError("insert project", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

// GetProject retrieves a project by ID.
func (s *SQLiteStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, projectSelect+" WHERE id = ?", id)
	p, err := scanProject(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, dherrors.NotFound("project", id)
	}
	if err != nil {
		return nil, dherrors.StorageError("get project", err)
	}
	return p, nil
}

// GetProjectBySlug retrieves a project by its unique slug.
func (s *SQLiteStore) GetProjectBySlug(ctx context.Context, slug string) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, projectSelect+" WHERE slug = ?", slug)
	p, err := scanProject(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, dherrors.New(dherrors.CategoryNotFound, dherrors.SeverityError, "project not found").
			WithContext("slug", slug)
	}
	if err != nil {
		return nil, dherrors.StorageError("get project", err)
	}
	return p, nil
}

// UpdateProject persists mutable project fields.
func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE projects SET name = ?, repo_url = ?, default_branch = ?, skip = ? WHERE id = ?",
		p.Name, p.RepoURL, p.DefaultBranch, p.Skip, p.ID,
	)
	if err != nil {
		return dherrors.StorageError("update project", err)
	}
	return requireAffected(res, "project", p.ID)
}

// ListProjects returns all projects ordered by ID.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, projectSelect+" ORDER BY id")
	if err != nil {
		return nil, dherrors.StorageError("list projects", err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, dherrors.StorageError("scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateVersion inserts a version and assigns its ID.
func (s *SQLiteStore) CreateVersion(ctx context.Context, v *models.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO versions (project_id, slug, verbose_name, identifier, active) VALUES (?, ?, ?, ?, ?)",
		v.ProjectID, v.Slug, v.VerboseName, v.Identifier, v.Active,
	)
	if err != nil {
		return dherrors.StorageError("insert version", err)
	}
	v.ID, err = res.LastInsertId()
	return err
}

// GetVersion retrieves a version by ID.
func (s *SQLiteStore) GetVersion(ctx context.Context, id int64) (*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, versionSelect+" WHERE id = ?", id)
	v, err := scanVersion(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, dherrors.NotFound("version", id)
	}
	if err != nil {
		return nil, dherrors.StorageError("get version", err)
	}
	return v, nil
}

// ListVersions returns a project's versions ordered by ID.
func (s *SQLiteStore) ListVersions(ctx context.Context, projectID int64) ([]*models.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, versionSelect+" WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, dherrors.StorageError("list versions", err)
	}
	defer rows.Close()

	var out []*models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, dherrors.StorageError("scan version", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateBuild inserts a build and assigns its ID.
func (s *SQLiteStore) CreateBuild(ctx context.Context, b *models.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.Date.IsZero() {
		b.Date = time.Now()
	}
	if b.Type == "" {
		b.Type = models.BuildTypeHTML
	}
	if b.State == "" {
		b.State = models.BuildStateTriggered
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO builds (project_id, version_id, type, state, success, error, commit_sha, exit_code, length, date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ProjectID, b.VersionID, b.Type, string(b.State), b.Success, b.Error, b.Commit, b.ExitCode,
		int64(b.Length), b.Date.UnixNano(),
	)
	if err != nil {
		return dherrors.StorageError("insert build", err)
	}
	b.ID, err = res.LastInsertId()
	return err
}

// GetBuild retrieves a build by ID.
func (s *SQLiteStore) GetBuild(ctx context.Context, id int64) (*models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, buildSelect+" WHERE id = ?", id)
	b, err := scanBuild(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, dherrors.NotFound("build", id)
	}
	if err != nil {
		return nil, dherrors.StorageError("get build", err)
	}
	return b, nil
}

// UpdateBuild persists the mutable build fields.
func (s *SQLiteStore) UpdateBuild(ctx context.Context, b *models.Build) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET state = ?, success = ?, error = ?, commit_sha = ?, exit_code = ?, length = ?
		 WHERE id = ?`,
		string(b.State), b.Success, b.Error, b.Commit, b.ExitCode, int64(b.Length), b.ID,
	)
	if err != nil {
		return dherrors.StorageError("update build", err)
	}
	return requireAffected(res, "build", b.ID)
}

// LatestBuild returns the most recent build of a version, or nil.
func (s *SQLiteStore) LatestBuild(ctx context.Context, versionID int64) (*models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, buildSelect+" WHERE version_id = ? ORDER BY date DESC, id DESC LIMIT 1", versionID)
	b, err := scanBuild(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dherrors.StorageError("latest build", err)
	}
	return b, nil
}

// ListUnfinishedBuilds returns non-finished builds created before the given time.
func (s *SQLiteStore) ListUnfinishedBuilds(ctx context.Context, before time.Time) ([]*models.Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		buildSelect+" WHERE state != ? AND date < ? ORDER BY id",
		string(models.BuildStateFinished), before.UnixNano(),
	)
	if err != nil {
		return nil, dherrors.StorageError("list unfinished builds", err)
	}
	defer rows.Close()

	var out []*models.Build
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, dherrors.StorageError("scan build", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateEmailHook inserts an email hook and assigns its ID.
func (s *SQLiteStore) CreateEmailHook(ctx context.Context, h *models.EmailHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "INSERT INTO email_hooks (project_id, email) VALUES (?, ?)", h.ProjectID, h.Email)
	if err != nil {
		return dherrors.StorageError("insert email hook", err)
	}
	h.ID, err = res.LastInsertId()
	return err
}

// ListEmailHooks returns a project's email hooks ordered by ID.
func (s *SQLiteStore) ListEmailHooks(ctx context.Context, projectID int64) ([]*models.EmailHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, project_id, email FROM email_hooks WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, dherrors.StorageError("list email hooks", err)
	}
	defer rows.Close()

	var out []*models.EmailHook
	for rows.Next() {
		var h models.EmailHook
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.Email); err != nil {
			return nil, dherrors.StorageError("scan email hook", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// CreateWebHook inserts a webhook and assigns its ID.
func (s *SQLiteStore) CreateWebHook(ctx context.Context, h *models.WebHook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "INSERT INTO web_hooks (project_id, url) VALUES (?, ?)", h.ProjectID, h.URL)
	if err != nil {
		return dherrors.StorageError("insert webhook", err)
	}
	h.ID, err = res.LastInsertId()
	return err
}

// ListWebHooks returns a project's webhooks ordered by ID.
func (s *SQLiteStore) ListWebHooks(ctx context.Context, projectID int64) ([]*models.WebHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, project_id, url FROM web_hooks WHERE project_id = ? ORDER BY id", projectID)
	if err != nil {
		return nil, dherrors.StorageError("list webhooks", err)
	}
	defer rows.Close()

	var out []*models.WebHook
	for rows.Next() {
		var h models.WebHook
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.URL); err != nil {
			return nil, dherrors.StorageError("scan webhook", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
