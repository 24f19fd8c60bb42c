package commands

import (
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/dochost/internal/config"
)

// InitCmd implements the 'init' command.
type InitCmd struct {
	Force  bool   `help:"Overwrite existing configuration file"`
	Output string `short:"o" name:"output" help:"Output directory for generated config file"`
}

func (i *InitCmd) Run(g *Global, root *CLI) error {
	cfgPath := root.Config
	if i.Output != "" {
		cfgPath = filepath.Join(i.Output, "dochost.yaml")
	}

	out := g.out()
	_, _ = fmt.Fprintf(out, "Writing configuration to %s\n", cfgPath)
	if err := config.Init(cfgPath, i.Force); err != nil {
		_, _ = fmt.Fprintln(out, "Initialization failed")
		return err
	}
	_, _ = fmt.Fprintln(out, "initialized successfully")
	return nil
}

// InitDBCmd implements the 'init-db' command.
type InitDBCmd struct{}

func (c *InitDBCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(g.out(), "Database ready at %s\n", cfg.Database.Path)
	return nil
}
