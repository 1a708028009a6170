package bot

import (
	"context"
	"strconv"
	"sync"
	"time"

	"spanner/internal/moderation"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
)

// Responder is the part of the session used to answer an interaction.
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Context carries one command invocation.
type Context struct {
	Interaction *discordgo.InteractionCreate
	responder   Responder
	prompts     *prompts

	mu        sync.Mutex
	responded bool

	sub     string
	options map[string]*discordgo.ApplicationCommandInteractionDataOption
}

func newContext(interaction *discordgo.InteractionCreate, responder Responder, p *prompts) *Context {
	c := &Context{
		Interaction: interaction,
		responder:   responder,
		prompts:     p,
		options:     make(map[string]*discordgo.ApplicationCommandInteractionDataOption),
	}
	if interaction.Type == discordgo.InteractionApplicationCommand {
		c.flatten(interaction.ApplicationCommandData().Options)
	}
	return c
}

// flatten descends into subcommands and indexes the leaf options by name.
func (c *Context) flatten(options []*discordgo.ApplicationCommandInteractionDataOption) {
	for _, opt := range options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionSubCommandGroup:
			c.sub = opt.Name
			c.flatten(opt.Options)
		case discordgo.ApplicationCommandOptionSubCommand:
			if c.sub != "" {
				c.sub += " " + opt.Name
			} else {
				c.sub = opt.Name
			}
			c.flatten(opt.Options)
		default:
			c.options[opt.Name] = opt
		}
	}
}

func (c *Context) Name() string {
	return c.Interaction.ApplicationCommandData().Name
}

// Sub is the invoked subcommand, "" when the command has none.
func (c *Context) Sub() string {
	return c.sub
}

func (c *Context) GuildID() string {
	return c.Interaction.GuildID
}

func (c *Context) ChannelID() string {
	return c.Interaction.ChannelID
}

// User is the invoking user, in guilds and DMs alike.
func (c *Context) User() *discordgo.User {
	if c.Interaction.Member != nil && c.Interaction.Member.User != nil {
		return c.Interaction.Member.User
	}
	return c.Interaction.User
}

// Permissions are the invoker's computed permissions in the channel.
func (c *Context) Permissions() int64 {
	if c.Interaction.Member == nil {
		return 0
	}
	return c.Interaction.Member.Permissions
}

func (c *Context) String(name string) string {
	if opt, ok := c.options[name]; ok {
		if s, ok := opt.Value.(string); ok {
			return s
		}
	}
	return ""
}

func (c *Context) Int(name string, fallback int) int {
	opt, ok := c.options[name]
	if !ok {
		return fallback
	}
	switch v := opt.Value.(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func (c *Context) Bool(name string, fallback bool) bool {
	if opt, ok := c.options[name]; ok {
		if v, ok := opt.Value.(bool); ok {
			return v
		}
	}
	return fallback
}

func (c *Context) Has(name string) bool {
	_, ok := c.options[name]
	return ok
}

// UserOption resolves a user option. The member is nil when the user is not
// in the guild.
func (c *Context) UserOption(name string) (*discordgo.User, *discordgo.Member) {
	id := c.String(name)
	if id == "" {
		return nil, nil
	}
	user := &discordgo.User{ID: id}
	var member *discordgo.Member
	if resolved := c.Interaction.ApplicationCommandData().Resolved; resolved != nil {
		if u, ok := resolved.Users[id]; ok {
			user = u
		}
		if m, ok := resolved.Members[id]; ok {
			member = m
			member.User = user
			member.GuildID = c.GuildID()
		}
	}
	return user, member
}

// ChannelOption returns the id of a channel option, or "".
func (c *Context) ChannelOption(name string) string {
	return c.String(name)
}

func (c *Context) Reply(content string, ephemeral bool) error {
	return c.send(&discordgo.InteractionResponseData{Content: content}, ephemeral)
}

func (c *Context) ReplyEmbed(embed *discordgo.MessageEmbed, ephemeral bool) error {
	return c.send(&discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}}, ephemeral)
}

// send answers the interaction, or adds a followup once it was answered.
func (c *Context) send(data *discordgo.InteractionResponseData, ephemeral bool) error {
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	c.mu.Lock()
	responded := c.responded
	c.responded = true
	c.mu.Unlock()

	if responded {
		_, err := c.responder.FollowupMessageCreate(c.Interaction.Interaction, true, &discordgo.WebhookParams{
			Content:    data.Content,
			Embeds:     data.Embeds,
			Components: data.Components,
			Flags:      data.Flags,
		})
		return err
	}
	return c.responder.InteractionRespond(c.Interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
}

// Confirm shows a confirmation prompt to the invoker and waits for an
// answer. A timeout counts as no.
func (c *Context) Confirm(ctx context.Context, confirmation moderation.Confirmation) (bool, error) {
	id := uuid.NewString()
	answer := c.prompts.open(id, c.User().ID)
	defer c.prompts.close(id)

	embed := &discordgo.MessageEmbed{
		Title:       confirmation.Title,
		Description: confirmation.Description,
		Color:       0xE67E22,
	}
	err := c.send(&discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: confirmButtons(id),
	}, true)
	if err != nil {
		return false, err
	}

	timeout := confirmation.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case yes := <-answer:
		return yes, nil
	case <-timer.C:
		c.expirePrompt("Timed out.")
		return false, nil
	case <-ctx.Done():
		c.expirePrompt("Cancelled.")
		return false, ctx.Err()
	}
}

func (c *Context) expirePrompt(content string) {
	components := []discordgo.MessageComponent{}
	embeds := []*discordgo.MessageEmbed{}
	_, _ = c.responder.InteractionResponseEdit(c.Interaction.Interaction, &discordgo.WebhookEdit{
		Content:    &content,
		Components: &components,
		Embeds:     &embeds,
	})
}
