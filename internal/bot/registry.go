package bot

import (
	"context"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

// Command is one slash command: its definition and the handler that runs it.
type Command interface {
	Definition() *discordgo.ApplicationCommand
	Execute(ctx context.Context, c *Context) error
}

// Registry holds the commands the bot serves, in registration order.
type Registry struct {
	commands map[string]Command
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]Command)}
}

func (r *Registry) Register(cmds ...Command) error {
	for _, cmd := range cmds {
		def := cmd.Definition()
		if def == nil || def.Name == "" {
			return errors.New("command without a name")
		}
		if _, ok := r.commands[def.Name]; ok {
			return errors.Errorf("command %q registered twice", def.Name)
		}
		r.commands[def.Name] = cmd
		r.order = append(r.order, def.Name)
	}
	return nil
}

func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Definitions returns the definitions to publish to the platform.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.commands[name].Definition())
	}
	return defs
}

type slashCommand struct {
	def *discordgo.ApplicationCommand
	run func(ctx context.Context, c *Context) error
}

func (s slashCommand) Definition() *discordgo.ApplicationCommand { return s.def }

func (s slashCommand) Execute(ctx context.Context, c *Context) error { return s.run(ctx, c) }
