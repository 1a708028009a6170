package bot

import (
	"spanner/internal/moderation"

	"github.com/bwmarrin/discordgo"
)

// guildInfo returns the guild with its roles, from the state cache when
// possible.
func (b *Bot) guildInfo(guildID string) (*discordgo.Guild, error) {
	if guild, err := b.session.State.Guild(guildID); err == nil && len(guild.Roles) > 0 {
		return guild, nil
	}
	return b.session.Guild(guildID)
}

func (b *Bot) selfMember(guildID string) *discordgo.Member {
	selfID := b.session.State.User.ID
	if member, err := b.session.State.Member(guildID, selfID); err == nil {
		return member
	}
	member, _ := b.session.GuildMember(guildID, selfID)
	return member
}

// toMember reduces a guild member to what the hierarchy check needs.
// Permissions are computed from the member's roles.
func toMember(guild *discordgo.Guild, member *discordgo.Member) moderation.Member {
	out := moderation.Member{}
	if member == nil {
		return out
	}
	if member.User != nil {
		out.ID = member.User.ID
		out.IsOwner = guild != nil && guild.OwnerID == member.User.ID
	}
	if guild == nil {
		return out
	}

	for _, role := range memberRoles(guild, member) {
		if role.Position > out.TopRole {
			out.TopRole = role.Position
		}
	}
	applyPermissions(&out, guildPermissions(guild, member))
	return out
}

func memberRoles(guild *discordgo.Guild, member *discordgo.Member) []*discordgo.Role {
	roles := make(map[string]*discordgo.Role, len(guild.Roles))
	for _, role := range guild.Roles {
		roles[role.ID] = role
	}
	out := make([]*discordgo.Role, 0, len(member.Roles))
	for _, roleID := range member.Roles {
		if role, ok := roles[roleID]; ok {
			out = append(out, role)
		}
	}
	return out
}

// guildPermissions ors the @everyone permissions with those of the
// member's roles.
func guildPermissions(guild *discordgo.Guild, member *discordgo.Member) int64 {
	if guild == nil || member == nil {
		return 0
	}
	var perms int64
	for _, role := range guild.Roles {
		if role.ID == guild.ID {
			perms |= role.Permissions
			break
		}
	}
	for _, role := range memberRoles(guild, member) {
		perms |= role.Permissions
	}
	return perms
}

// actorMember uses the permissions the platform computed for the invoker.
func actorMember(guild *discordgo.Guild, member *discordgo.Member) moderation.Member {
	out := toMember(guild, member)
	if member != nil && member.Permissions != 0 {
		applyPermissions(&out, member.Permissions)
	}
	return out
}

func applyPermissions(m *moderation.Member, perms int64) {
	m.IsAdmin = perms&discordgo.PermissionAdministrator != 0
	m.CanModerate = m.IsAdmin || perms&discordgo.PermissionModerateMembers != 0
}
