// Package cli holds the spanner command line: running the bot and the
// helpers around its configuration.
package cli

import (
	mcli "github.com/mitchellh/cli"
)

const appName = "spanner"

// Meta is shared by every command.
type Meta struct {
	Ui      mcli.Ui
	Version string
}

// New builds the command line application for args.
func New(version string, args []string, ui mcli.Ui) *mcli.CLI {
	meta := Meta{Ui: ui, Version: version}

	app := mcli.NewCLI(appName, version)
	app.Args = args
	app.Commands = map[string]mcli.CommandFactory{
		"run":            factory(&RunCommand{Meta: meta}),
		"setup":          factory(&SetupCommand{Meta: meta, Path: "config.json"}),
		"convert":        factory(&ConvertCommand{Meta: meta, Source: ".env", Target: "config.json"}),
		"update":         factory(&UpdateCommand{Meta: meta}),
		"info version":   factory(&VersionCommand{Meta: meta}),
		"info file-tree": factory(&FileTreeCommand{Meta: meta}),
		"token create":   factory(&TokenCreateCommand{Meta: meta}),
	}
	return app
}

func factory(cmd mcli.Command) mcli.CommandFactory {
	return func() (mcli.Command, error) {
		return cmd, nil
	}
}
