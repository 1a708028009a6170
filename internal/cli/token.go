package cli

import (
	"context"
	"fmt"
	"os"

	"spanner/internal/config"
	"spanner/internal/storage"
)

type TokenCreateCommand struct {
	Meta
	// DatabasePath overrides the configured database.
	DatabasePath string
}

func (c *TokenCreateCommand) Synopsis() string {
	return "Creates a token for the admin API"
}

func (c *TokenCreateCommand) Help() string {
	return `Usage: spanner token create

  Stores a new random API token and prints it. The token is accepted by
  the admin API as "Authorization: Bearer <token>".`
}

func (c *TokenCreateCommand) Run(args []string) int {
	store, err := storage.New(c.databasePath())
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}

	token, err := store.CreateAPIToken(context.Background())
	if err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("Token %d created:", token.ID))
	c.Ui.Output(token.Secret)
	return 0
}

// databasePath does not need a bot token, unlike a full config load.
func (c *TokenCreateCommand) databasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	if cfg, err := config.Load(); err == nil {
		return cfg.DatabasePath
	}
	if path := os.Getenv("DATABASE_PATH"); path != "" {
		return path
	}
	return config.DefaultConfig().DatabasePath
}
