package bot

import (
	"context"
	"fmt"

	"spanner/internal/moderation"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type moderationDef struct {
	kind        moderation.Type
	description string
	permission  int64
	// pastTense is used in the reply, e.g. "Banned".
	pastTense string
	duration  bool
	purge     bool
}

var (
	moderationWarn    = moderationDef{kind: moderation.Warn, description: "Warn a member", permission: discordgo.PermissionModerateMembers, pastTense: "Warned"}
	moderationMute    = moderationDef{kind: moderation.Mute, description: "Time out a member", permission: discordgo.PermissionModerateMembers, pastTense: "Muted", duration: true}
	moderationUnmute  = moderationDef{kind: moderation.Unmute, description: "Remove a member's time out", permission: discordgo.PermissionModerateMembers, pastTense: "Unmuted"}
	moderationKick    = moderationDef{kind: moderation.Kick, description: "Kick a member", permission: discordgo.PermissionKickMembers, pastTense: "Kicked"}
	moderationBan     = moderationDef{kind: moderation.Ban, description: "Ban a member", permission: discordgo.PermissionBanMembers, pastTense: "Banned", purge: true}
	moderationHackban = moderationDef{kind: moderation.Hackban, description: "Ban a user who is not in the server", permission: discordgo.PermissionBanMembers, pastTense: "Banned", purge: true}
	moderationUnban   = moderationDef{kind: moderation.Unban, description: "Unban a user", permission: discordgo.PermissionBanMembers, pastTense: "Unbanned"}
	moderationSoftban = moderationDef{kind: moderation.Softban, description: "Ban and unban a member to delete their messages", permission: discordgo.PermissionBanMembers, pastTense: "Soft-banned", purge: true}
)

func (md moderationDef) definition() *discordgo.ApplicationCommand {
	options := []*discordgo.ApplicationCommandOption{userOption}
	if md.duration {
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "duration",
			Description: "How long, e.g. 1h 30m. Between 1 minute and 28 days",
			Required:    true,
		})
	}
	options = append(options, reasonOption)
	if md.purge {
		options = append(options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "delete_days",
			Description: "Days of messages to delete",
			MinValue:    floatPtr(0),
			MaxValue:    7,
		})
	}
	return &discordgo.ApplicationCommand{
		Name:                     md.kind.String(),
		Description:              md.description,
		DefaultMemberPermissions: perms(md.permission),
		DMPermission:             guildOnly,
		Options:                  options,
	}
}

func (b *Bot) moderationCommand(md moderationDef) Command {
	return slashCommand{
		def: md.definition(),
		run: func(ctx context.Context, c *Context) error {
			return b.runModeration(ctx, c, md)
		},
	}
}

func (b *Bot) runModeration(ctx context.Context, c *Context, md moderationDef) error {
	guild, err := b.guildInfo(c.GuildID())
	if err != nil {
		return errors.Wrap(err, "load guild")
	}
	user, member := c.UserOption("user")
	if user == nil {
		return c.Reply("Pick a user.", true)
	}

	action := moderation.Action{
		Type:       md.kind,
		GuildID:    guild.ID,
		Actor:      actorMember(guild, c.Interaction.Member),
		TargetID:   user.ID,
		TargetName: user.Username,
		Reason:     c.String("reason"),
		Duration:   c.String("duration"),
		Prompt:     c,
	}
	if member != nil {
		target := toMember(guild, member)
		action.Target = &target
	}
	if self := b.selfMember(guild.ID); self != nil {
		bot := toMember(guild, self)
		action.Bot = &bot
	}
	if c.Has("delete_days") {
		days := c.Int("delete_days", 0)
		action.PurgeDays = &days
	}

	res, err := b.moderation.Execute(ctx, action)
	if err != nil {
		return err
	}
	if md.kind == moderation.Warn {
		warning := warningEmbed(guild.Name, res, b.cfg.EmbedColors.Warning)
		if !notifyWarned(ctx, b.session, c.ChannelID(), user, warning, b.logger) {
			md.pastTense = "Logged a warning for"
		}
	}
	return c.ReplyEmbed(resultEmbed(md, user, res, b.cfg.EmbedColors.Case), false)
}

func resultEmbed(md moderationDef, user *discordgo.User, res moderation.Result, colour int) *discordgo.MessageEmbed {
	desc := fmt.Sprintf("**Reason**: %s", truncate(res.Case.Reason, 1024))
	if !res.Expires.IsZero() {
		desc += fmt.Sprintf("\n**Expires**: <t:%d:R>", res.Expires.Unix())
	}
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s %s | Case #%d", md.pastTense, displayName(user), res.Case.ID),
		Description: desc,
		Color:       colour,
	}
}

func displayName(user *discordgo.User) string {
	if user.Username == "" {
		return user.ID
	}
	return user.Username
}

type directMessenger interface {
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

func warningEmbed(guildName string, res moderation.Result, colour int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("You have been warned in %s.", guildName),
		Description: "The reason was:\n>>> " + truncate(res.Case.Reason, 4000),
		Color:       colour,
		Fields: []*discordgo.MessageEmbedField{{
			Name:  "Think this is incorrect?",
			Value: fmt.Sprintf("Your case ID is `%d` - you can speak to a moderator.", res.Case.ID),
		}},
		Footer: &discordgo.MessageEmbedFooter{Text: guildName},
	}
}

// notifyWarned DMs the warning to the target. When DMs are closed the
// embed is posted in channelID with a mention instead, and false is
// returned.
func notifyWarned(ctx context.Context, dm directMessenger, channelID string, user *discordgo.User, embed *discordgo.MessageEmbed, logger *zap.Logger) bool {
	channel, err := dm.UserChannelCreate(user.ID, discordgo.WithContext(ctx))
	if err == nil {
		_, err = dm.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}}, discordgo.WithContext(ctx))
	}
	if err == nil {
		return true
	}
	logger.Debug("warn dm failed", zap.String("user_id", user.ID), zap.Error(err))

	fallback := *embed
	fallback.Footer = &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%s | Please enable DMs, %s.", embed.Footer.Text, displayName(user))}
	msg := &discordgo.MessageSend{
		Content:         "<@" + user.ID + ">",
		Embeds:          []*discordgo.MessageEmbed{&fallback},
		AllowedMentions: &discordgo.MessageAllowedMentions{Users: []string{user.ID}},
	}
	if _, err := dm.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx)); err != nil {
		logger.Warn("post warning in channel failed", zap.String("channel_id", channelID), zap.String("user_id", user.ID), zap.Error(err))
	}
	return false
}
