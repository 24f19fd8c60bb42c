// Package vcs checks out project versions into the build workspace.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
)

// AuthConfig selects credentials for remote repositories.
type AuthConfig struct {
	Type     string `yaml:"type"` // none, token, basic, ssh
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Token    string `yaml:"token,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// Client clones repositories below a workspace directory.
type Client struct {
	workspaceDir string
	auth         *AuthConfig
}

// NewClient creates a client rooted at workspaceDir.
func NewClient(workspaceDir string, auth *AuthConfig) *Client {
	return &Client{workspaceDir: workspaceDir, auth: auth}
}

// Checkout is the result of a successful checkout.
type Checkout struct {
	Path   string
	Commit string
}

// Path returns the checkout directory for a project version.
func (c *Client) Path(projectSlug, versionSlug string) string {
	return filepath.Join(c.workspaceDir, projectSlug, versionSlug)
}

// Checkout clones repoURL at ref (a branch or tag) into the project version's
// directory, replacing any previous checkout.
func (c *Client) Checkout(ctx context.Context, repoURL, ref, projectSlug, versionSlug string) (*Checkout, error) {
	path := c.Path(projectSlug, versionSlug)

	slog.Debug("Checking out repository", logfields.URL(repoURL), slog.String("ref", ref), logfields.Path(path))

	if err := os.RemoveAll(path); err != nil {
		return nil, dherrors.WorkspaceError("remove checkout", err).WithContext("path", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, dherrors.WorkspaceError("create workspace", err).WithContext("path", path)
	}

	auth, err := c.authMethod()
	if err != nil {
		return nil, dherrors.VCSCheckoutError(repoURL, err)
	}

	repo, err := c.clone(ctx, path, repoURL, ref, auth)
	if err != nil {
		return nil, dherrors.VCSCheckoutError(repoURL, err).WithContext("ref", ref)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, dherrors.VCSCheckoutError(repoURL, fmt.Errorf("resolve HEAD: %w", err))
	}

	commit := head.Hash().String()
	slog.Info("Repository checked out", logfields.URL(repoURL), logfields.Commit(commit[:8]), logfields.Path(path))
	return &Checkout{Path: path, Commit: commit}, nil
}

func (c *Client) clone(ctx context.Context, path, repoURL, ref string, auth transport.AuthMethod) (*git.Repository, error) {
	opts := &git.CloneOptions{URL: repoURL, Auth: auth, SingleBranch: ref != ""}
	if ref == "" {
		return git.PlainCloneContext(ctx, path, false, opts)
	}

	opts.ReferenceName = plumbing.NewBranchReferenceName(ref)
	repo, err := git.PlainCloneContext(ctx, path, false, opts)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, plumbing.ErrReferenceNotFound) && !isNoMatchingRef(err) {
		return nil, err
	}

	// Not a branch; retry as a tag.
	if rmErr := os.RemoveAll(path); rmErr != nil {
		return nil, rmErr
	}
	opts.ReferenceName = plumbing.NewTagReferenceName(ref)
	return git.PlainCloneContext(ctx, path, false, opts)
}

func isNoMatchingRef(err error) bool {
	var noMatch git.NoMatchingRefSpecError
	return errors.As(err, &noMatch)
}

func (c *Client) authMethod() (transport.AuthMethod, error) {
	if c.auth == nil {
		return nil, nil
	}
	switch c.auth.Type {
	case "none", "":
		return nil, nil
	case "ssh":
		keyPath := c.auth.KeyPath
		if keyPath == "" {
			keyPath = filepath.Join(os.Getenv("HOME"), ".ssh", "id_rsa")
		}
		keys, err := ssh.NewPublicKeysFromFile("git", keyPath, "")
		if err != nil {
			return nil, fmt.Errorf("load SSH key from %s: %w", keyPath, err)
		}
		return keys, nil
	case "token":
		if c.auth.Token == "" {
			return nil, fmt.Errorf("token authentication requires a token")
		}
		return &http.BasicAuth{Username: "token", Password: c.auth.Token}, nil
	case "basic":
		if c.auth.Username == "" || c.auth.Password == "" {
			return nil, fmt.Errorf("basic authentication requires username and password")
		}
		return &http.BasicAuth{Username: c.auth.Username, Password: c.auth.Password}, nil
	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", c.auth.Type)
	}
}
