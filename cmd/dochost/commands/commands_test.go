package commands

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alecthomas/kong"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/dochost/internal/config"
	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/testutil/fixture"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  path: %s
workspace:
  dir: %s
notifications:
  production_domain: docs.example.org
  from_address: no-reply@docs.example.org
mail:
  backend: outbox
metrics:
  enabled: false
builds:
  command: ["true"]
`, filepath.Join(dir, "dochost.db"), filepath.Join(dir, "workspace"))
	path := filepath.Join(dir, "dochost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	cli := &CLI{}
	parser, err := kong.New(cli,
		kong.Name("dochost"),
		kong.Vars{"version": "test"},
		kong.Exit(func(code int) { t.Fatalf("unexpected exit %d", code) }),
	)
	require.NoError(t, err)

	kctx, err := parser.Parse(append([]string{"--config", cfgPath}, args...))
	require.NoError(t, err)

	var out bytes.Buffer
	err = kctx.Run(&Global{Logger: slog.Default(), Out: &out}, cli)
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dochost.yaml")

	out, err := runCLI(t, path, "init")
	require.NoError(t, err)
	assert.Contains(t, out, "initialized successfully")
	assert.FileExists(t, path)
	_, err = config.Load(path)
	require.NoError(t, err)

	_, err = runCLI(t, path, "init")
	require.Error(t, err, "existing config must not be overwritten without --force")

	_, err = runCLI(t, path, "init", "--force")
	require.NoError(t, err)
}

func TestProjectAndHookAdministration(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := runCLI(t, cfg, "init-db")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "project", "add", "pip", "--repo", "https://git.example.org/pip.git", "--name", "Pip")
	require.NoError(t, err)
	assert.Contains(t, out, "Created project pip (id 1)")
	assert.Contains(t, out, "Created version latest")

	_, err = runCLI(t, cfg, "project", "version", "add", "pip", "v1.0", "--identifier", "1.0")
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "hook", "add-email", "pip", "dev@example.org")
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "hook", "add-web", "1", "https://hooks.example.org/build")
	require.NoError(t, err)

	out, err = runCLI(t, cfg, "hook", "list", "pip")
	require.NoError(t, err)
	assert.Contains(t, out, "dev@example.org")
	assert.Contains(t, out, "https://hooks.example.org/build")

	out, err = runCLI(t, cfg, "project", "version", "list", "pip")
	require.NoError(t, err)
	assert.Contains(t, out, "latest")
	assert.Contains(t, out, "v1.0")

	out, err = runCLI(t, cfg, "project", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Pip")
}

func TestHookValidation(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCLI(t, cfg, "project", "add", "pip", "--repo", "https://git.example.org/pip.git")
	require.NoError(t, err)

	_, err = runCLI(t, cfg, "hook", "add-email", "pip", "not-an-address")
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryValidation))

	_, err = runCLI(t, cfg, "hook", "add-web", "pip", "ftp://hooks.example.org")
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryValidation))

	_, err = runCLI(t, cfg, "hook", "add-web", "missing", "https://hooks.example.org")
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryNotFound))
}

func TestBuildFailureStillNotifies(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hook.Close)

	cfg := writeTestConfig(t)
	missingRepo := filepath.Join(t.TempDir(), "missing")
	_, err := runCLI(t, cfg, "project", "add", "broken", "--repo", missingRepo, "--name", "Broken")
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "hook", "add-email", "broken", "a@example.org")
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "hook", "add-email", "broken", "b@example.org")
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "hook", "add-web", "broken", hook.URL)
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "build", "broken")
	require.Error(t, err)
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryBuild))
	assert.Equal(t, 11, dherrors.NewCLIErrorAdapter(false, nil).ExitCodeFor(err))

	assert.Contains(t, out, "Build 1 of broken failed")
	assert.Contains(t, out, "To: a@example.org, b@example.org")
	assert.Contains(t, out, "Subject: Failed: Broken (latest)")
	assert.Equal(t, int32(1), hits.Load())

	out, err = runCLI(t, cfg, "notify", "--version-id", "1", "--build-id", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Notifications sent for build 1")
	assert.Equal(t, int32(2), hits.Load())
}

func TestBuildSuccessDoesNotNotifyByDefault(t *testing.T) {
	repo, commit := fixture.GitRepo(t, "main", map[string]string{"docs/index.md": "# Hello\n"})

	cfg := writeTestConfig(t)
	_, err := runCLI(t, cfg, "project", "add", "ok", "--repo", repo)
	require.NoError(t, err)
	_, err = runCLI(t, cfg, "hook", "add-email", "ok", "dev@example.org")
	require.NoError(t, err)

	out, err := runCLI(t, cfg, "build", "ok")
	require.NoError(t, err)
	assert.Contains(t, out, "Build 1 of ok passed at "+commit[:8])
	assert.NotContains(t, out, "Subject:")
}

func TestNotifyUnknownBuild(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := runCLI(t, cfg, "notify", "--version-id", "1", "--build-id", "42")
	require.Error(t, err)
	assert.True(t, dherrors.IsCategory(err, dherrors.CategoryNotFound))
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv("DOCHOST_LOG_LEVEL", "warn")
	assert.Equal(t, slog.LevelWarn, parseLogLevel(false))
	assert.Equal(t, slog.LevelDebug, parseLogLevel(true))

	t.Setenv("DOCHOST_LOG_LEVEL", "")
	assert.Equal(t, slog.LevelInfo, parseLogLevel(false))
}
