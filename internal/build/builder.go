package build

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/logfields"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/observability"
)

// Request describes one documentation build.
type Request struct {
	Project      *models.Project
	Version      *models.Version
	Build        *models.Build
	CheckoutPath string
	Intersphinx  bool
	Force        bool
}

// Builder produces documentation for a checked-out version.
type Builder interface {
	Build(ctx context.Context, req Request) error
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, req Request) error

func (f BuilderFunc) Build(ctx context.Context, req Request) error { return f(ctx, req) }

// CommandBuilder runs an external documentation tool in the checkout.
type CommandBuilder struct {
	Command   []string
	OutputDir string
}

const maxOutputInError = 2048

// OutputPlaceholder in a command argument is replaced by the output directory.
const OutputPlaceholder = "{output}"

// Build runs the command. The tool receives the project, version, output
// directory and intersphinx flag through DOCHOST_* environment variables.
func (b *CommandBuilder) Build(ctx context.Context, req Request) error {
	if len(b.Command) == 0 {
		return dherrors.ConfigRequired("builds.command")
	}

	outDir := filepath.Join(b.OutputDir, req.Project.Slug, req.Version.Slug, req.Build.Type)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return dherrors.WorkspaceError("create output directory", err).WithContext("path", outDir)
	}

	args := make([]string, len(b.Command))
	for i, arg := range b.Command {
		args[i] = strings.ReplaceAll(arg, OutputPlaceholder, outDir)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = req.CheckoutPath
	cmd.Env = append(os.Environ(),
		"DOCHOST_PROJECT="+req.Project.Slug,
		"DOCHOST_VERSION="+req.Version.Slug,
		"DOCHOST_OUTPUT_DIR="+outDir,
		fmt.Sprintf("DOCHOST_INTERSPHINX=%t", req.Intersphinx),
		fmt.Sprintf("DOCHOST_FORCE=%t", req.Force),
	)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	observability.InfoContext(ctx, "Running documentation command",
		logfields.Path(req.CheckoutPath), slog.String("command", strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		tail := output.String()
		if len(tail) > maxOutputInError {
			tail = tail[len(tail)-maxOutputInError:]
		}
		return dherrors.BuildFailed("build", err).WithContext("output", tail)
	}
	return nil
}
