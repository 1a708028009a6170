package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"spanner/internal/modules/audit"
	"spanner/internal/modules/polls"
	"spanner/internal/modules/snipe"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	maxPurge = 100
	// messages older than this can not be bulk deleted
	bulkDeleteAge = 14 * 24 * time.Hour
)

func (b *Bot) runSettings(ctx context.Context, c *Context) error {
	switch c.Sub() {
	case "log-channel":
		channelID := c.ChannelOption("channel")
		if err := b.guilds.SetLogChannel(ctx, c.GuildID(), channelID); err != nil {
			return err
		}
		if channelID == "" {
			return c.Reply("Case logging disabled.", true)
		}
		return c.Reply(fmt.Sprintf("Cases will be logged to <#%s>.", channelID), true)
	case "prefix":
		prefix := c.String("prefix")
		if err := b.guilds.SetPrefix(ctx, c.GuildID(), prefix); err != nil {
			return err
		}
		return c.Reply(fmt.Sprintf("Prefix set to `%s`.", prefix), true)
	case "snipes":
		enabled := c.Bool("enabled", true)
		if err := b.guilds.SetSnipeDisabled(ctx, c.GuildID(), !enabled); err != nil {
			return err
		}
		if !enabled {
			return c.Reply("Sniping disabled.", true)
		}
		return c.Reply("Sniping enabled.", true)
	}

	guild, err := b.guilds.GetOrCreate(ctx, c.GuildID())
	if err != nil {
		return err
	}
	// The cached guild row does not see case allocations.
	next, err := b.store.NextCaseNumber(ctx, guild.EntryID)
	if err != nil {
		return err
	}
	return c.ReplyEmbed(settingsEmbed(guild, next, b.cfg.EmbedColors.Case), true)
}

func settingsEmbed(guild storage.Guild, nextCase, colour int) *discordgo.MessageEmbed {
	logChannel := "Not set"
	if id := guild.LogChannelID(); id != "" {
		logChannel = "<#" + id + ">"
	}
	snipes := "Enabled"
	if guild.DisableSnipe {
		snipes = "Disabled"
	}
	return &discordgo.MessageEmbed{
		Title: "Settings",
		Color: colour,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Prefix", Value: "`" + guild.Prefix + "`", Inline: true},
			{Name: "Log channel", Value: logChannel, Inline: true},
			{Name: "Snipes", Value: snipes, Inline: true},
			{Name: "Next case", Value: strconv.Itoa(nextCase), Inline: true},
		},
	}
}

func (b *Bot) runSnipe(ctx context.Context, c *Context) error {
	guild, err := b.guilds.GetOrCreate(ctx, c.GuildID())
	if err != nil {
		return err
	}
	if guild.DisableSnipe {
		return c.Reply("Sniping is disabled in this server.", true)
	}

	kind := snipe.Deleted
	if c.String("kind") == string(snipe.Edited) {
		kind = snipe.Edited
	}
	messages := b.snipes.List(kind, c.ChannelID())
	index := c.Int("index", 1)
	if index < 1 || index > len(messages) {
		return c.Reply("Nothing to snipe.", true)
	}
	return c.ReplyEmbed(snipeEmbed(messages[index-1], index, len(messages)), false)
}

func snipeEmbed(msg snipe.Message, index, total int) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Author:    &discordgo.MessageEmbedAuthor{Name: msg.Author},
		Color:     0x3498DB,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("%d/%d", index, total)},
	}
	if msg.Before != "" {
		embed.Fields = append(embed.Fields,
			&discordgo.MessageEmbedField{Name: "Before", Value: truncate(msg.Before, 1024)},
			&discordgo.MessageEmbedField{Name: "After", Value: truncate(msg.Content, 1024)},
		)
	} else {
		embed.Description = truncate(msg.Content, 4000)
	}
	if len(msg.Links) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Links",
			Value: truncate(strings.Join(msg.Links, "\n"), 1024),
		})
	}
	return embed
}

func (b *Bot) runPurge(ctx context.Context, c *Context) error {
	amount := c.Int("amount", 0)
	if amount < 1 || amount > maxPurge {
		return c.Reply(fmt.Sprintf("Amount must be between 1 and %d.", maxPurge), true)
	}
	userID := c.String("user")

	recent, err := b.session.ChannelMessages(c.ChannelID(), maxPurge, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return errors.Wrap(err, "fetch messages")
	}
	ids := selectPurge(recent, userID, amount, time.Now())
	switch len(ids) {
	case 0:
		return c.Reply("No messages to delete.", true)
	case 1:
		err = b.session.ChannelMessageDelete(c.ChannelID(), ids[0], discordgo.WithContext(ctx))
	default:
		err = b.session.ChannelMessagesBulkDelete(c.ChannelID(), ids, discordgo.WithContext(ctx))
	}
	if err != nil {
		return errors.Wrap(err, "delete messages")
	}
	return c.Reply(fmt.Sprintf("Deleted %d message(s).", len(ids)), true)
}

// selectPurge picks up to amount message ids young enough for bulk
// deletion, optionally only from userID.
func selectPurge(messages []*discordgo.Message, userID string, amount int, now time.Time) []string {
	ids := make([]string, 0, amount)
	for _, msg := range messages {
		if len(ids) == amount {
			break
		}
		if now.Sub(msg.Timestamp) >= bulkDeleteAge {
			continue
		}
		if userID != "" && (msg.Author == nil || msg.Author.ID != userID) {
			continue
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

func (b *Bot) runPoll(ctx context.Context, c *Context) error {
	channelID := c.ChannelOption("post-in")
	if channelID == "" {
		channelID = c.ChannelID()
	}
	user := c.User()
	poll, msg, err := b.polls.Create(ctx, polls.CreateRequest{
		GuildID:   c.GuildID(),
		ChannelID: channelID,
		Owner:     user.ID,
		OwnerName: user.Username,
		Question:  c.String("question"),
		Duration:  c.String("duration"),
	})
	if err != nil {
		return err
	}
	b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), user.ID, "poll_created", fmt.Sprintf("poll %d", poll.ID))
	return c.Reply(fmt.Sprintf("Poll created: https://discord.com/channels/%s/%s/%s", c.GuildID(), msg.ChannelID, msg.ID), true)
}

func (b *Bot) handlePollButton(ctx context.Context, c *Context, pollID int64, action string) error {
	userID := c.User().ID

	switch action {
	case polls.ActionYes, polls.ActionNo:
		if _, err := b.polls.Vote(ctx, pollID, userID, action == polls.ActionYes); err != nil {
			return err
		}
		return c.Reply("Your vote has been recorded.", true)
	case polls.ActionResults:
		poll, err := b.polls.Get(ctx, pollID)
		if err != nil {
			return err
		}
		data := &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{{
			Title:       poll.Question,
			Description: polls.Results(poll),
			Color:       polls.ColourOpen,
		}}}
		if c.Permissions()&discordgo.PermissionAdministrator != 0 {
			data.Components = []discordgo.MessageComponent{discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "View voters", Style: discordgo.SecondaryButton, CustomID: polls.CustomID(pollID, polls.ActionVoters)},
			}}}
		}
		return c.send(data, true)
	case polls.ActionVoters:
		if c.Permissions()&discordgo.PermissionAdministrator == 0 {
			return c.Reply("Only administrators can view voters.", true)
		}
		poll, err := b.polls.Get(ctx, pollID)
		if err != nil {
			return err
		}
		yes, no := polls.Voters(poll)
		return c.ReplyEmbed(&discordgo.MessageEmbed{
			Title: poll.Question,
			Color: polls.ColourOpen,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Yes", Value: mentionList(yes), Inline: true},
				{Name: "No", Value: mentionList(no), Inline: true},
			},
		}, true)
	case polls.ActionDelete:
		if err := b.polls.Delete(ctx, pollID, userID); err != nil {
			return err
		}
		b.audit.Log(ctx, audit.LevelInfo, c.GuildID(), userID, "poll_deleted", fmt.Sprintf("poll %d", pollID))
		return c.Reply("Poll deleted.", true)
	}
	b.logger.Debug("unknown poll action", zap.String("action", action))
	return nil
}

func mentionList(ids []string) string {
	if len(ids) == 0 {
		return "Nobody"
	}
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = "<@" + id + ">"
	}
	return truncate(strings.Join(mentions, "\n"), 1024)
}

func (b *Bot) runErrors(ctx context.Context, c *Context) error {
	if !b.cfg.IsOwner(c.User().ID) {
		return c.Reply("This command is restricted to the bot owners.", true)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(c.String("id")), 10, 64)
	if err != nil {
		return c.Reply("Error ids are numbers.", true)
	}

	switch c.Sub() {
	case "delete":
		if err := b.store.DeleteErrorRecord(ctx, id); err != nil {
			return err
		}
		return c.Reply(fmt.Sprintf("Deleted error %d.", id), true)
	}

	rec, err := b.store.GetErrorRecord(ctx, id)
	if err != nil {
		return err
	}
	fields := []*discordgo.MessageEmbedField{
		{Name: "Command", Value: string(rec.CommandType) + " " + rec.Command, Inline: true},
		{Name: "Author", Value: "<@" + rec.Author + ">", Inline: true},
		{Name: "Created", Value: fmt.Sprintf("<t:%d:R>", rec.CreatedAt), Inline: true},
	}
	if rec.Guild.Valid {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Guild", Value: rec.Guild.String, Inline: true})
	}
	if rec.Channel.Valid {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Channel", Value: "<#" + rec.Channel.String + ">", Inline: true})
	}
	return c.ReplyEmbed(&discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Error %d", rec.ID),
		Description: "```\n" + truncate(rec.Traceback, 4000) + "\n```",
		Color:       b.cfg.EmbedColors.Error,
		Fields:      fields,
	}, true)
}

func (b *Bot) runStats(ctx context.Context, c *Context) error {
	snap, err := b.analytics.Snapshot(ctx)
	if err != nil {
		return err
	}
	totalCases := 0
	for _, n := range snap.Cases {
		totalCases += n
	}
	return c.ReplyEmbed(&discordgo.MessageEmbed{
		Title: "Stats",
		Color: b.cfg.EmbedColors.Case,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Guilds", Value: strconv.Itoa(snap.Guilds), Inline: true},
			{Name: "Latency", Value: fmt.Sprintf("%d ms", snap.LatencyMS), Inline: true},
			{Name: "Uptime", Value: (time.Duration(snap.UptimeSeconds) * time.Second).String(), Inline: true},
			{Name: "Cases", Value: strconv.Itoa(totalCases), Inline: true},
			{Name: "Open polls", Value: strconv.Itoa(snap.OpenPolls), Inline: true},
			{Name: "CPU", Value: fmt.Sprintf("%.1f%%", snap.Host.CPUPercent), Inline: true},
			{Name: "Memory", Value: fmt.Sprintf("%d / %d MiB", snap.Host.MemoryUsed>>20, snap.Host.MemoryTotal>>20), Inline: true},
			{Name: "Goroutines", Value: strconv.Itoa(snap.Host.Goroutines), Inline: true},
		},
	}, false)
}
