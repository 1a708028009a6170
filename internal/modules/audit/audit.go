// Package audit records ledger events: every event is stored and logged,
// and case events are also posted to the guild's log channel.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"spanner/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	LevelInfo = "INFO"
	LevelWarn = "WARN"
	LevelCrit = "CRIT"
)

const (
	ColourCase    = 0x5865F2
	ColourEdited  = 0xE67E22
	ColourDeleted = 0xED4245

	fieldLimit = 1024
)

type Store interface {
	AddAuditLog(ctx context.Context, entry storage.AuditLog) error
}

// Poster sends embeds to a channel. *discordgo.Session satisfies it.
type Poster interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type Emitter struct {
	store  Store
	poster Poster
	logger *zap.Logger
	now    func() time.Time
}

func New(store Store, poster Poster, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{store: store, poster: poster, logger: logger, now: time.Now}
}

// SetPoster attaches the platform client once the session exists.
func (e *Emitter) SetPoster(poster Poster) {
	e.poster = poster
}

func (e *Emitter) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: e.now(),
	}
	if e.store != nil {
		if err := e.store.AddAuditLog(ctx, entry); err != nil {
			e.logger.Warn("persist audit entry failed", zap.String("event", event), zap.Error(err))
		}
	}
	e.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

func (e *Emitter) CaseCreated(ctx context.Context, guild storage.Guild, c storage.Case) {
	e.Log(ctx, LevelInfo, guild.ID, c.Moderator, "case_created", fmt.Sprintf("#%d %s target=%s", c.ID, c.Type, c.Target))
	e.post(ctx, guild, CaseEmbed(c, e.now()))
}

func (e *Emitter) CaseEdited(ctx context.Context, guild storage.Guild, c storage.Case, actor string, changes []string) {
	e.Log(ctx, LevelInfo, guild.ID, actor, "case_edited", fmt.Sprintf("#%d changes=%s", c.ID, strings.Join(changes, ",")))
	e.post(ctx, guild, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("\U0001F4DD Case #%d (%s) by <@%s> was edited", c.ID, c.Type.Title(), c.Moderator),
		Description: fmt.Sprintf("Edited by <@%s>\nChanges: %s", actor, strings.Join(changes, ", ")),
		Color:       ColourEdited,
		Timestamp:   e.now().UTC().Format(time.RFC3339),
	})
}

func (e *Emitter) CaseDeleted(ctx context.Context, guild storage.Guild, c storage.Case, actor string) {
	e.Log(ctx, LevelWarn, guild.ID, actor, "case_deleted", fmt.Sprintf("#%d %s target=%s", c.ID, c.Type, c.Target))
	e.post(ctx, guild, &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("\U0001F5D1\uFE0F Case #%d (%s) by <@%s> was deleted", c.ID, c.Type.Title(), c.Moderator),
		Description: fmt.Sprintf("Deleted by <@%s>", actor),
		Color:       ColourDeleted,
		Timestamp:   e.now().UTC().Format(time.RFC3339),
	})
}

// post delivers embed to the guild's log channel. Failures are logged and
// otherwise ignored.
func (e *Emitter) post(ctx context.Context, guild storage.Guild, embed *discordgo.MessageEmbed) {
	channelID := guild.LogChannelID()
	if channelID == "" || e.poster == nil {
		return
	}
	if _, err := e.poster.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		e.logger.Warn("post to log channel failed", zap.String("guild_id", guild.ID), zap.String("channel_id", channelID), zap.Error(err))
	}
}

// CaseEmbed renders a case for the log channel.
func CaseEmbed(c storage.Case, now time.Time) *discordgo.MessageEmbed {
	var desc strings.Builder
	fmt.Fprintf(&desc, "**Moderator**: <@%s> (`%s`)\n", c.Moderator, c.Moderator)
	fmt.Fprintf(&desc, "**Target**: <@%s> (`%s`)\n", c.Target, c.Target)
	fmt.Fprintf(&desc, "**Created**: <t:%d:R>\n", c.CreatedAt)
	fmt.Fprintf(&desc, "**Type**: %s", c.Type)
	if expires, ok := c.Expires(); ok {
		fmt.Fprintf(&desc, "\n**Expires:** <t:%d:R>", expires.Unix())
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Case #%d - %s", c.ID, c.Type.Title()),
		Description: desc.String(),
		Color:       ColourCase,
		Timestamp:   now.UTC().Format(time.RFC3339),
	}
	for i, chunk := range chunkReason(c.Reason, fieldLimit) {
		name := "\u200b"
		if i == 0 {
			name = "Reason:"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: name, Value: chunk})
	}
	return embed
}

// chunkReason packs the lines of reason into chunks of at most limit runes.
// Lines longer than limit are shortened.
func chunkReason(reason string, limit int) []string {
	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	for _, line := range strings.Split(reason, "\n") {
		line = shorten(line, limit)
		n := utf8.RuneCountInString(line)
		if size > 0 && size+1+n > limit {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
		if size > 0 {
			current.WriteByte('\n')
			size++
		}
		current.WriteString(line)
		size += n
	}
	if strings.TrimSpace(current.String()) != "" {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func shorten(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
