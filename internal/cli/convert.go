package cli

import (
	"os"

	"spanner/internal/config"
)

type ConvertCommand struct {
	Meta
	Source string
	Target string
}

func (c *ConvertCommand) Synopsis() string {
	return "Converts your old environment file to a config file"
}

func (c *ConvertCommand) Help() string {
	return `Usage: spanner convert

  Reads .env and writes the equivalent config.json.`
}

func (c *ConvertCommand) Run(args []string) int {
	doc, err := config.ConvertEnvFile(c.Source)
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	if err := config.WriteJSON(c.Target, doc); err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}

	answer, err := c.Ui.Ask("Done. Remove old file? [y/N] ")
	if err == nil && isYes(answer) {
		if err := os.Remove(c.Source); err != nil {
			c.Ui.Error("Error: " + err.Error())
			return 1
		}
		c.Ui.Output("Done and removed old file.")
	} else {
		c.Ui.Output("Done.")
	}
	c.Ui.Output("You may want to edit " + c.Target + " to make sure everything was converted correctly.")
	return 0
}
