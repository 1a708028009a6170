package cli

import (
	"os"
	"os/exec"
)

const installPath = "spanner/cmd/spanner@latest"

type UpdateCommand struct {
	Meta
}

func (c *UpdateCommand) Synopsis() string {
	return "Installs the latest version of spanner"
}

func (c *UpdateCommand) Help() string {
	return `Usage: spanner update

  Runs go install for the latest release. Requires the Go toolchain.`
}

func (c *UpdateCommand) Run(args []string) int {
	goBin, err := exec.LookPath("go")
	if err != nil {
		c.Ui.Error("The go toolchain is not on your PATH; install it to update spanner.")
		return 1
	}
	c.Ui.Output("Updating spanner...")
	cmd := exec.Command(goBin, "install", installPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		c.Ui.Error("Update failed: " + err.Error())
		return 1
	}
	c.Ui.Output("Updated. Restart the bot to use the new version.")
	return 0
}
