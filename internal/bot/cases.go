package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"spanner/internal/moderation"
	"spanner/internal/modules/audit"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

func (b *Bot) runCase(ctx context.Context, c *Context) error {
	ref := c.String("case")

	switch c.Sub() {
	case "view":
		found, err := b.cases.View(ctx, c.GuildID(), ref)
		if err != nil {
			return err
		}
		return c.ReplyEmbed(audit.CaseEmbed(found, time.Now()), false)
	}

	guild, err := b.guildInfo(c.GuildID())
	if err != nil {
		return errors.Wrap(err, "load guild")
	}
	actor := actorMember(guild, c.Interaction.Member)

	switch c.Sub() {
	case "edit":
		updated, err := b.cases.EditReason(ctx, c.GuildID(), actor, ref, c.String("reason"))
		if err != nil {
			return err
		}
		return c.ReplyEmbed(audit.CaseEmbed(updated, time.Now()), true)
	case "delete":
		deleted, err := b.cases.Delete(ctx, c.GuildID(), actor, ref, c)
		if err != nil {
			return err
		}
		return c.Reply(fmt.Sprintf("Deleted case #%d.", deleted.ID), true)
	}
	return errors.Errorf("unknown case subcommand %q", c.Sub())
}

func (b *Bot) runCases(ctx context.Context, c *Context) error {
	guild, err := b.guildInfo(c.GuildID())
	if err != nil {
		return errors.Wrap(err, "load guild")
	}

	title := "Cases"
	target := ""
	if c.Sub() == "user" {
		user, _ := c.UserOption("user")
		if user != nil {
			target = user.ID
			title = "Cases for " + displayName(user)
		}
	}

	pages, err := b.cases.List(ctx, guild.ID, actorMember(guild, c.Interaction.Member), target, c.Int("per_page", moderation.DefaultPerPage))
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return c.Reply("No cases found.", true)
	}
	return c.ReplyEmbed(casePage(title, pages, c.Int("page", 1), b.cfg.EmbedColors.Case), true)
}

// casePage renders one page of a case listing. page is 1-based and clamped.
func casePage(title string, pages [][]storage.Case, page, colour int) *discordgo.MessageEmbed {
	if page < 1 {
		page = 1
	}
	if page > len(pages) {
		page = len(pages)
	}
	lines := make([]string, 0, len(pages[page-1]))
	for _, line := range pages[page-1] {
		lines = append(lines, moderation.FormatCaseLine(line))
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: strings.Join(lines, "\n"),
		Color:       colour,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Page %d/%d", page, len(pages))},
	}
}
