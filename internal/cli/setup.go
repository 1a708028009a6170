package cli

import (
	"fmt"
	"strings"

	"spanner/internal/config"
)

var logLevels = []string{"DEBUG", "INFO", "WARNING", "ERROR", "CRITICAL"}

type SetupCommand struct {
	Meta
	Path string
}

func (c *SetupCommand) Synopsis() string {
	return "Guides you through setting up the bot"
}

func (c *SetupCommand) Help() string {
	return `Usage: spanner setup

  Asks a few questions and writes config.json.`
}

// setupAnswers is written to the config file as is.
type setupAnswers struct {
	BotToken     string   `json:"bot_token"`
	DevBotToken  string   `json:"dev_bot_token"`
	OwnerIDs     []string `json:"owner_ids"`
	Colour       bool     `json:"colour"`
	SlashGuilds  []string `json:"slash_guilds"`
	Debug        bool     `json:"debug"`
	LogLevel     string   `json:"log_level"`
	ErrorChannel string   `json:"error_channel,omitempty"`
	AdminToken   string   `json:"admin_token,omitempty"`
}

func (c *SetupCommand) Run(args []string) int {
	answers, err := c.collect()
	if err != nil {
		c.Ui.Error("Setup aborted: " + err.Error())
		return 1
	}
	c.Ui.Output("Awesome! Generating config file now...")
	if err := config.WriteJSON(c.Path, answers); err != nil {
		c.Ui.Error("Error: " + err.Error())
		return 1
	}
	c.Ui.Output(fmt.Sprintf("All set! You can either run `%s run`, or edit `%s`!", appName, c.Path))
	return 0
}

func (c *SetupCommand) collect() (setupAnswers, error) {
	var answers setupAnswers

	c.Ui.Output("First, you'll need to give me a token that your *main* bot will use. Do not give me a token " +
		"that you will use to test on.\nIf you don't have a token or don't want to have one, just press enter.")
	mainToken, err := c.Ui.Ask("> ")
	if err != nil {
		return answers, err
	}

	c.Ui.Output("Great! Now, you should give me a development token (a second bot that you'll use for testing). " +
		"If you want to skip straight to production, just hit enter.\nNote that this will disable debug mode.")
	if answers.DevBotToken, err = c.Ui.Ask("> "); err != nil {
		return answers, err
	}
	answers.BotToken = mainToken
	if answers.BotToken == "" {
		answers.BotToken = answers.DevBotToken
	}

	c.Ui.Output("Amazing. On that note, would you like to enable debug mode? (yes or no)")
	debug, err := c.Ui.Ask("> ")
	if err != nil {
		return answers, err
	}
	if isYes(debug) {
		c.Ui.Output("In debug mode, slash commands are created exclusively in the test servers you list. " +
			"Changes to commands show up in roughly real time instead of after the wait for global commands.")
		c.Ui.Output("Enter a server ID each time the `> ` prompt comes up. Once you are done, " +
			"press enter with nothing after the prompt.")
		guilds, err := c.askIDs("With no debug guilds supplied, debug mode will be turned off.\n" +
			"If you are sure this is what you want, hit enter again. Otherwise, supply at least one server ID.")
		if err != nil {
			return answers, err
		}
		answers.SlashGuilds = guilds
		answers.Debug = len(guilds) > 0
		if answers.Debug {
			c.Ui.Output(fmt.Sprintf("Alright, added %d debug guilds.", len(guilds)))
			c.Ui.Output("Make sure the bot is in every server you just listed, otherwise there will be a " +
				"(non-fatal) error at startup.")
		} else {
			c.Ui.Output("Alright, disabled debug mode and didn't add any debug servers.")
		}
	}

	c.Ui.Output("Now, we should set some owners, so that only you and whoever you say can run important " +
		"commands.\nWould you like to set owner IDs? [y/N]")
	override, err := c.Ui.Ask("> ")
	if err != nil {
		return answers, err
	}
	if isYes(override) {
		c.Ui.Output("Enter a user ID each time the `> ` prompt comes up. Once you are done, " +
			"press enter with nothing after the prompt.")
		owners, err := c.askIDs("With no user IDs supplied, nobody will be able to run owner commands.\n" +
			"If this is what you want, press enter again. Otherwise, provide a user ID.")
		if err != nil {
			return answers, err
		}
		answers.OwnerIDs = owners
		if len(owners) > 0 {
			c.Ui.Output(fmt.Sprintf("Alright, added %d owners.", len(owners)))
		}
	}

	c.Ui.Output("What should be logged? Say any of the following: " + strings.Join(logLevels, ", ") + ".")
	for {
		level, err := c.Ui.Ask("> ")
		if err != nil {
			return answers, err
		}
		level = strings.ToUpper(strings.TrimSpace(level))
		if contains(logLevels, level) {
			answers.LogLevel = level
			break
		}
		c.Ui.Output("Only the following values are accepted: " + strings.Join(logLevels, ", "))
	}

	c.Ui.Output("You can also set a channel where errors from commands are reported. " +
		"Enter that channel's ID now, or press enter to skip.")
	channel, err := c.Ui.Ask("> ")
	if err != nil {
		return answers, err
	}
	if isID(channel) {
		answers.ErrorChannel = strings.TrimSpace(channel)
	}

	c.Ui.Output("The admin API needs a token to authenticate requests. Enter one now, or press enter to skip.")
	if answers.AdminToken, err = c.Ui.Ask("> "); err != nil {
		return answers, err
	}

	c.Ui.Output("Finally, do you want your console output to look fancy? [Y/n]")
	colour, err := c.Ui.Ask("> ")
	if err != nil {
		return answers, err
	}
	answers.Colour = !strings.HasPrefix(strings.ToLower(strings.TrimSpace(colour)), "n")

	return answers, nil
}

// askIDs reads numeric IDs until an empty line. An empty first answer shows
// warning and needs a second empty line to confirm an empty list.
func (c *SetupCommand) askIDs(warning string) ([]string, error) {
	var ids []string
	warned := false
	for {
		raw, err := c.Ui.Ask("> ")
		if err != nil {
			return nil, err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			if len(ids) == 0 && !warned {
				c.Ui.Output(warning)
				warned = true
				continue
			}
			return ids, nil
		}
		if !isID(raw) {
			c.Ui.Output("Please input IDs only.")
			continue
		}
		ids = append(ids, raw)
	}
}

func isYes(answer string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y")
}

func isID(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
