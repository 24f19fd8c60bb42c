// Package commands implements the dochost command line.
package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dochost/internal/config"
	"git.home.luguber.info/inful/dochost/internal/models"
	"git.home.luguber.info/inful/dochost/internal/storage"
)

// Global carries shared state into every command.
type Global struct {
	Logger *slog.Logger
	Out    io.Writer
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"dochost.yaml" env:"DOCHOST_CONFIG"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`
	InitDB  InitDBCmd  `cmd:"" name:"init-db" help:"Create the database schema"`
	Project ProjectCmd `cmd:"" help:"Manage projects and their versions"`
	Hook    HookCmd    `cmd:"" help:"Manage project notification hooks"`
	Build   BuildCmd   `cmd:"" help:"Check out and build a project version"`
	Notify  NotifyCmd  `cmd:"" help:"Send the notifications for a finished build"`
	Serve   ServeCmd   `cmd:"" help:"Run the task workers, scheduler and HTTP API"`
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(logger)
	return nil
}

// parseLogLevel honors --verbose first, then DOCHOST_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("DOCHOST_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (g *Global) out() io.Writer {
	if g == nil || g.Out == nil {
		return os.Stdout
	}
	return g.Out
}

func loadConfig(root *CLI) (*config.Config, error) {
	return config.Load(root.Config)
}

// lookupProject resolves a project by numeric ID or slug.
func lookupProject(ctx context.Context, store storage.Store, ref string) (*models.Project, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return store.GetProject(ctx, id)
	}
	return store.GetProjectBySlug(ctx, ref)
}
