package bot

import (
	"context"
	"time"

	"spanner/internal/metrics"
	"spanner/internal/modules/polls"
	"spanner/internal/modules/snipe"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// commandTimeout bounds a command, including any confirmation prompt.
const commandTimeout = 10 * time.Minute

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		b.runCommand(session, interaction)
	case discordgo.InteractionMessageComponent:
		b.onComponent(session, interaction)
	}
}

func (b *Bot) runCommand(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	c := newContext(interaction, session, b.prompts)
	name := c.Name()
	cmd, ok := b.registry.Lookup(name)
	if !ok {
		b.logger.Warn("unknown command", zap.String("command", name))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	err := b.execute(ctx, cmd, c)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		b.handleError(ctx, c, storage.CommandSlash, commandLabel(c), err)
	}
	metrics.CommandsExecuted.WithLabelValues(name, outcome).Inc()
}

// execute runs cmd and turns a panic into an error carrying its stack.
func (b *Bot) execute(ctx context.Context, cmd Command, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(errors.Errorf("panic: %v", r))
		}
	}()
	return cmd.Execute(ctx, c)
}

func commandLabel(c *Context) string {
	if sub := c.Sub(); sub != "" {
		return c.Name() + " " + sub
	}
	return c.Name()
}

func (b *Bot) onComponent(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	customID := interaction.MessageComponentData().CustomID

	if id, yes, ok := parseConfirmID(customID); ok {
		b.answerPrompt(session, interaction, id, yes)
		return
	}
	if pollID, action, ok := polls.ParseCustomID(customID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c := newContext(interaction, session, b.prompts)
		if err := b.handlePollButton(ctx, c, pollID, action); err != nil {
			b.handleError(ctx, c, storage.CommandUnknown, "poll "+action, err)
		}
	}
}

func (b *Bot) answerPrompt(session *discordgo.Session, interaction *discordgo.InteractionCreate, id string, yes bool) {
	userID := ""
	if interaction.Member != nil && interaction.Member.User != nil {
		userID = interaction.Member.User.ID
	} else if interaction.User != nil {
		userID = interaction.User.ID
	}

	var data *discordgo.InteractionResponseData
	respType := discordgo.InteractionResponseUpdateMessage
	switch b.prompts.resolve(id, userID, yes) {
	case promptResolved:
		content := "Confirmed."
		if !yes {
			content = "Cancelled."
		}
		data = &discordgo.InteractionResponseData{
			Content:    content,
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		}
	case promptWrongUser:
		respType = discordgo.InteractionResponseChannelMessageWithSource
		data = &discordgo.InteractionResponseData{Content: "This prompt is not for you.", Flags: discordgo.MessageFlagsEphemeral}
	default:
		data = &discordgo.InteractionResponseData{
			Content:    "This prompt has expired.",
			Embeds:     []*discordgo.MessageEmbed{},
			Components: []discordgo.MessageComponent{},
		}
	}
	if err := session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{Type: respType, Data: data}); err != nil {
		b.logger.Warn("answer prompt failed", zap.Error(err))
	}
}

func (b *Bot) snipesEnabled(guildID string) bool {
	if guildID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	guild, err := b.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		b.logger.Warn("load guild config failed", zap.String("guild_id", guildID), zap.Error(err))
		return false
	}
	return !guild.DisableSnipe
}

func (b *Bot) onMessageDelete(session *discordgo.Session, event *discordgo.MessageDelete) {
	if event.BeforeDelete == nil || !b.snipesEnabled(event.GuildID) {
		return
	}
	if msg, ok := toSnipe(event.BeforeDelete); ok {
		b.snipes.RecordDeleted(msg)
	}
}

func (b *Bot) onMessageDeleteBulk(session *discordgo.Session, event *discordgo.MessageDeleteBulk) {
	if !b.snipesEnabled(event.GuildID) {
		return
	}
	for _, id := range event.Messages {
		cached, err := session.State.Message(event.ChannelID, id)
		if err != nil {
			continue
		}
		if msg, ok := toSnipe(cached); ok {
			b.snipes.RecordDeleted(msg)
		}
	}
}

func (b *Bot) onMessageUpdate(session *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.BeforeUpdate == nil || event.Message == nil || !b.snipesEnabled(event.GuildID) {
		return
	}
	before, ok := toSnipe(event.BeforeUpdate)
	if !ok {
		return
	}
	after := before
	after.Content = event.Content
	b.snipes.RecordEdited(before, after)
}

func (b *Bot) onChannelDelete(session *discordgo.Session, event *discordgo.ChannelDelete) {
	b.snipes.Forget(event.ID)
}

// toSnipe converts a cached message. Bot messages and empty messages are
// not kept.
func toSnipe(m *discordgo.Message) (snipe.Message, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Content == "" {
		return snipe.Message{}, false
	}
	return snipe.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		AuthorID:  m.Author.ID,
		Author:    m.Author.Username,
		Content:   m.Content,
		CreatedAt: m.Timestamp,
	}, true
}
