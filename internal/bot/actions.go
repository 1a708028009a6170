package bot

import (
	"context"
	"net/http"
	"time"

	"spanner/internal/moderation"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
)

// discordActions performs moderation actions through the REST API. The
// reason ends up in the guild's audit log.
type discordActions struct {
	session *discordgo.Session
}

func (a *discordActions) Ban(ctx context.Context, guildID, userID, reason string, purgeDays int) error {
	return a.session.GuildBanCreateWithReason(guildID, userID, reason, purgeDays, discordgo.WithContext(ctx))
}

func (a *discordActions) Kick(ctx context.Context, guildID, userID, reason string) error {
	return a.session.GuildMemberDeleteWithReason(guildID, userID, reason, discordgo.WithContext(ctx))
}

func (a *discordActions) Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error {
	return a.session.GuildMemberTimeout(guildID, userID, &until,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (a *discordActions) RemoveTimeout(ctx context.Context, guildID, userID, reason string) error {
	return a.session.GuildMemberTimeout(guildID, userID, nil,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func (a *discordActions) FetchBan(ctx context.Context, guildID, userID string) (*moderation.BanEntry, error) {
	ban, err := a.session.GuildBan(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &moderation.BanEntry{UserID: userID, Reason: ban.Reason}, nil
}

func (a *discordActions) Unban(ctx context.Context, guildID, userID, reason string) error {
	return a.session.GuildBanDelete(guildID, userID,
		discordgo.WithContext(ctx), discordgo.WithAuditLogReason(reason))
}

func isStatus(err error, status int) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == status
}
