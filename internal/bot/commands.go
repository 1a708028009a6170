package bot

import (
	"spanner/internal/storage"

	"github.com/bwmarrin/discordgo"
)

func perms(p int64) *int64 {
	return &p
}

var guildOnly = func() *bool { b := false; return &b }()

// commands is the explicit list of commands the bot serves.
func (b *Bot) commands() []Command {
	return []Command{
		b.moderationCommand(moderationWarn),
		b.moderationCommand(moderationMute),
		b.moderationCommand(moderationUnmute),
		b.moderationCommand(moderationKick),
		b.moderationCommand(moderationBan),
		b.moderationCommand(moderationHackban),
		b.moderationCommand(moderationUnban),
		b.moderationCommand(moderationSoftban),
		slashCommand{def: caseDefinition, run: b.runCase},
		slashCommand{def: casesDefinition, run: b.runCases},
		slashCommand{def: settingsDefinition, run: b.runSettings},
		slashCommand{def: snipeDefinition, run: b.runSnipe},
		slashCommand{def: purgeDefinition, run: b.runPurge},
		slashCommand{def: pollDefinition, run: b.runPoll},
		slashCommand{def: errorsDefinition, run: b.runErrors},
		slashCommand{def: statsDefinition, run: b.runStats},
	}
}

var (
	userOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "The user",
		Required:    true,
	}
	reasonOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "reason",
		Description: "Reason for the action",
		MaxLength:   4000,
	}
	caseRefOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "case",
		Description: "Case number or id",
		Required:    true,
	}
	pageOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "page",
		Description: "Page to show",
		MinValue:    floatPtr(1),
	}
	perPageOption = &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "per_page",
		Description: "Cases per page",
		MinValue:    floatPtr(1),
		MaxValue:    25,
	}
)

func floatPtr(v float64) *float64 {
	return &v
}

func intPtr(v int) *int {
	return &v
}

var caseDefinition = &discordgo.ApplicationCommand{
	Name:                     "case",
	Description:              "View and manage moderation cases",
	DefaultMemberPermissions: perms(discordgo.PermissionModerateMembers),
	DMPermission:             guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "view",
			Description: "Show a case",
			Options:     []*discordgo.ApplicationCommandOption{caseRefOption},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "edit",
			Description: "Change the reason of a case",
			Options: []*discordgo.ApplicationCommandOption{
				caseRefOption,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "The new reason",
					Required:    true,
					MaxLength:   4000,
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "delete",
			Description: "Delete a case",
			Options:     []*discordgo.ApplicationCommandOption{caseRefOption},
		},
	},
}

var casesDefinition = &discordgo.ApplicationCommand{
	Name:                     "cases",
	Description:              "List moderation cases",
	DefaultMemberPermissions: perms(discordgo.PermissionModerateMembers),
	DMPermission:             guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "all",
			Description: "List every case in this server",
			Options:     []*discordgo.ApplicationCommandOption{pageOption, perPageOption},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "user",
			Description: "List the cases against a user",
			Options:     []*discordgo.ApplicationCommandOption{userOption, pageOption, perPageOption},
		},
	},
}

var settingsDefinition = &discordgo.ApplicationCommand{
	Name:                     "settings",
	Description:              "Server settings",
	DefaultMemberPermissions: perms(discordgo.PermissionManageServer),
	DMPermission:             guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "view",
			Description: "Show the current settings",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "log-channel",
			Description: "Set the channel cases are logged to. Leave empty to disable",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:         discordgo.ApplicationCommandOptionChannel,
				Name:         "channel",
				Description:  "The log channel",
				ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
			}},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "prefix",
			Description: "Set the text command prefix",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "prefix",
				Description: "The new prefix",
				Required:    true,
				MinLength:   intPtr(1),
				MaxLength:   storage.MaxPrefixLength,
			}},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "snipes",
			Description: "Enable or disable sniping",
			Options: []*discordgo.ApplicationCommandOption{{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "enabled",
				Description: "Whether deleted and edited messages are kept",
				Required:    true,
			}},
		},
	},
}

var snipeDefinition = &discordgo.ApplicationCommand{
	Name:                     "snipe",
	Description:              "Show a recently deleted or edited message",
	DefaultMemberPermissions: perms(discordgo.PermissionManageMessages),
	DMPermission:             guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "kind",
			Description: "Deleted or edited messages",
			Choices: []*discordgo.ApplicationCommandOptionChoice{
				{Name: "deleted", Value: "deleted"},
				{Name: "edited", Value: "edited"},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "index",
			Description: "1 is the most recent message",
			MinValue:    floatPtr(1),
		},
	},
}

var purgeDefinition = &discordgo.ApplicationCommand{
	Name:                     "purge",
	Description:              "Bulk delete recent messages",
	DefaultMemberPermissions: perms(discordgo.PermissionManageMessages),
	DMPermission:             guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionInteger,
			Name:        "amount",
			Description: "How many messages to delete",
			Required:    true,
			MinValue:    floatPtr(1),
			MaxValue:    maxPurge,
		},
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "user",
			Description: "Only delete messages from this user",
		},
	},
}

var pollDefinition = &discordgo.ApplicationCommand{
	Name:         "simple-poll",
	Description:  "Start a yes/no poll",
	DMPermission: guildOnly,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "question",
			Description: "What to ask",
			Required:    true,
			MaxLength:   256,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "duration",
			Description: "How long the poll runs, e.g. 1d 12h. Defaults to 1 day",
		},
		{
			Type:         discordgo.ApplicationCommandOptionChannel,
			Name:         "post-in",
			Description:  "Channel to post the poll in",
			ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
		},
	},
}

var errorsDefinition = &discordgo.ApplicationCommand{
	Name:        "errors",
	Description: "Inspect stored error records",
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "view",
			Description: "Show an error record",
			Options:     []*discordgo.ApplicationCommandOption{errorIDOption},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        "delete",
			Description: "Delete an error record",
			Options:     []*discordgo.ApplicationCommandOption{errorIDOption},
		},
	},
}

var errorIDOption = &discordgo.ApplicationCommandOption{
	Type:        discordgo.ApplicationCommandOptionString,
	Name:        "id",
	Description: "Error id",
	Required:    true,
}

var statsDefinition = &discordgo.ApplicationCommand{
	Name:        "stats",
	Description: "Bot statistics",
}
