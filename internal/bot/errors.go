package bot

import (
	"context"
	"database/sql"
	"fmt"

	"spanner/internal/moderation"
	"spanner/internal/modules/polls"
	"spanner/internal/storage"
	"spanner/internal/utils"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const tracebackPreview = 1000

// userMessage maps an error to the message shown to the invoker. The second
// result is false for unexpected errors, which get an error record instead.
func userMessage(err error) (string, bool) {
	var modErr *moderation.Error
	switch {
	case errors.As(err, &modErr) && modErr.Kind != moderation.KindUnexpected:
		return modErr.Message, true
	case errors.Is(err, moderation.ErrDeclined):
		return "Cancelled.", true
	case errors.Is(err, moderation.ErrCaseNotFound):
		return "Case not found.", true
	case errors.Is(err, utils.ErrInvalidDuration):
		return "Invalid duration. Use something like `1d 12h` or `30m`.", true
	case errors.Is(err, polls.ErrTooLong):
		return "Polls can not run for longer than a month.", true
	case errors.Is(err, polls.ErrNotOwner):
		return "Only the poll owner can delete it.", true
	case errors.Is(err, storage.ErrAlreadyVoted):
		return "You have already voted on this poll.", true
	case errors.Is(err, storage.ErrPollEnded):
		return "This poll has ended.", true
	case errors.Is(err, storage.ErrInvalidPrefix):
		return fmt.Sprintf("The prefix must be between 1 and %d characters.", storage.MaxPrefixLength), true
	case errors.Is(err, storage.ErrNotFound):
		return "Not found.", true
	}
	return "", false
}

// handleError answers a failed command. Unexpected errors are stored as an
// error record and announced in the error channel.
func (b *Bot) handleError(ctx context.Context, c *Context, commandType storage.CommandType, command string, err error) {
	if msg, ok := userMessage(err); ok {
		var modErr *moderation.Error
		if errors.As(err, &modErr) && modErr.Kind == moderation.KindExternal {
			b.logger.Warn("platform refused action", zap.String("command", command), zap.Error(err))
		}
		_ = c.Reply(msg, true)
		return
	}

	b.logger.Error("command failed", zap.String("command", command), zap.Error(err))
	rec := newErrorRecord(c, commandType, command, err)
	if c.GuildID() != "" {
		if guild, gErr := b.guildInfo(c.GuildID()); gErr == nil {
			rec.PermissionsGuild = guildPermissions(guild, c.Interaction.Member)
		}
	}
	rec, recErr := b.store.CreateErrorRecord(context.WithoutCancel(ctx), rec)
	if recErr != nil {
		b.logger.Error("store error record failed", zap.Error(recErr))
		_ = c.Reply("An unexpected error occurred.", true)
		return
	}
	b.announceError(rec)
	_ = c.Reply(fmt.Sprintf("An unexpected error occurred. Error ID: `%d`", rec.ID), true)
}

func newErrorRecord(c *Context, commandType storage.CommandType, command string, err error) storage.ErrorRecord {
	rec := storage.ErrorRecord{
		Traceback:   fmt.Sprintf("%+v", err),
		Command:     command,
		CommandType: commandType,
	}
	if user := c.User(); user != nil {
		rec.Author = user.ID
	}
	if guildID := c.GuildID(); guildID != "" {
		rec.Guild = sql.NullString{String: guildID, Valid: true}
	}
	if channelID := c.ChannelID(); channelID != "" {
		rec.Channel = sql.NullString{String: channelID, Valid: true}
	}
	rec.PermissionsChannel = c.Permissions()
	return rec
}

func (b *Bot) announceError(rec storage.ErrorRecord) {
	if b.cfg.ErrorChannel == "" {
		return
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Error %d", rec.ID),
		Description: "```\n" + truncate(rec.Traceback, tracebackPreview) + "\n```",
		Color:       b.cfg.EmbedColors.Error,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Command", Value: string(rec.CommandType) + " " + rec.Command, Inline: true},
			{Name: "Author", Value: "<@" + rec.Author + ">", Inline: true},
		},
	}
	if _, err := b.session.ChannelMessageSendEmbed(b.cfg.ErrorChannel, embed); err != nil {
		b.logger.Warn("post error record failed", zap.Int64("error_id", rec.ID), zap.Error(err))
	}
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
