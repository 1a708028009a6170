package main

import (
	"fmt"
	"os"

	"spanner/internal/cli"

	mcli "github.com/mitchellh/cli"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ui := &mcli.BasicUi{
		Reader:      os.Stdin,
		Writer:      os.Stdout,
		ErrorWriter: os.Stderr,
	}

	app := cli.New(version, os.Args[1:], ui)
	exitStatus, err := app.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitStatus)
}
