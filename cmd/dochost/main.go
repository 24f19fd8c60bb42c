package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/dochost/cmd/dochost/commands"
	dherrors "git.home.luguber.info/inful/dochost/internal/errors"
	"git.home.luguber.info/inful/dochost/internal/version"
)

func main() {
	cli := &commands.CLI{}
	parser := kong.Parse(cli,
		kong.Name("dochost"),
		kong.Description("Build hosted documentation and notify project subscribers."),
		kong.UsageOnError(),
		kong.Vars{"version": version.String()},
	)

	err := parser.Run(&commands.Global{Logger: slog.Default(), Out: os.Stdout}, cli)
	if err != nil {
		dherrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
	}
}
