package bot

import (
	"context"
	"testing"
	"time"

	"spanner/internal/moderation"
	"spanner/internal/modules/polls"
	"spanner/internal/modules/snipe"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testGuild() *discordgo.Guild {
	return &discordgo.Guild{
		ID:      "g1",
		OwnerID: "owner",
		Roles: []*discordgo.Role{
			{ID: "g1", Position: 0, Permissions: discordgo.PermissionSendMessages},
			{ID: "mods", Position: 5, Permissions: discordgo.PermissionModerateMembers},
			{ID: "admins", Position: 8, Permissions: discordgo.PermissionAdministrator},
			{ID: "fans", Position: 2},
		},
	}
}

func TestToMemberUsesHighestRole(t *testing.T) {
	guild := testGuild()

	mod := toMember(guild, &discordgo.Member{User: &discordgo.User{ID: "m"}, Roles: []string{"fans", "mods"}})
	assert.Equal(t, moderation.Member{ID: "m", TopRole: 5, CanModerate: true}, mod)

	admin := toMember(guild, &discordgo.Member{User: &discordgo.User{ID: "a"}, Roles: []string{"admins", "missing"}})
	assert.Equal(t, 8, admin.TopRole)
	assert.True(t, admin.IsAdmin)
	assert.True(t, admin.CanModerate)

	owner := toMember(guild, &discordgo.Member{User: &discordgo.User{ID: "owner"}})
	assert.True(t, owner.IsOwner)
	assert.Zero(t, owner.TopRole)
}

func TestActorMemberPrefersInteractionPermissions(t *testing.T) {
	guild := testGuild()
	actor := actorMember(guild, &discordgo.Member{
		User:        &discordgo.User{ID: "m"},
		Roles:       []string{"fans"},
		Permissions: discordgo.PermissionAdministrator,
	})
	assert.True(t, actor.IsAdmin)
	assert.Equal(t, 2, actor.TopRole)
}

func TestGuildPermissionsIncludeEveryone(t *testing.T) {
	perms := guildPermissions(testGuild(), &discordgo.Member{Roles: []string{"mods"}})
	assert.NotZero(t, perms&discordgo.PermissionSendMessages)
	assert.NotZero(t, perms&discordgo.PermissionModerateMembers)
	assert.Zero(t, guildPermissions(nil, &discordgo.Member{}))
}

func TestUserMessage(t *testing.T) {
	cases := []struct {
		err      error
		expected string
		known    bool
	}{
		{&moderation.Error{Kind: moderation.KindValidation, Message: "Too long."}, "Too long.", true},
		{errors.Wrap(moderation.ErrDeclined, "ban"), "Cancelled.", true},
		{moderation.ErrCaseNotFound, "Case not found.", true},
		{polls.ErrNotOwner, "Only the poll owner can delete it.", true},
		{storage.ErrAlreadyVoted, "You have already voted on this poll.", true},
		{errors.Wrap(storage.ErrInvalidPrefix, "set prefix"), "The prefix must be between 1 and 16 characters.", true},
		{&moderation.Error{Kind: moderation.KindUnexpected, Message: "boom"}, "", false},
		{errors.New("disk full"), "", false},
	}
	for _, tc := range cases {
		msg, known := userMessage(tc.err)
		assert.Equal(t, tc.expected, msg, tc.err.Error())
		assert.Equal(t, tc.known, known, tc.err.Error())
	}
}

func TestNewErrorRecordCarriesStack(t *testing.T) {
	c := newContext(commandInteraction(discordgo.ApplicationCommandInteractionData{Name: "ban"}), newFakeResponder(), newPrompts())
	rec := newErrorRecord(c, storage.CommandSlash, "ban", errors.New("boom"))

	assert.Equal(t, "u1", rec.Author)
	assert.Equal(t, "g1", rec.Guild.String)
	assert.Equal(t, "c1", rec.Channel.String)
	assert.Equal(t, int64(discordgo.PermissionModerateMembers), rec.PermissionsChannel)
	assert.Contains(t, rec.Traceback, "boom")
	assert.Contains(t, rec.Traceback, "TestNewErrorRecordCarriesStack")
}

func TestSelectPurge(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	messages := []*discordgo.Message{
		{ID: "1", Author: &discordgo.User{ID: "a"}, Timestamp: now.Add(-time.Minute)},
		{ID: "2", Author: &discordgo.User{ID: "b"}, Timestamp: now.Add(-time.Hour)},
		{ID: "3", Author: &discordgo.User{ID: "a"}, Timestamp: now.Add(-24 * time.Hour)},
		{ID: "4", Author: &discordgo.User{ID: "a"}, Timestamp: now.Add(-15 * 24 * time.Hour)},
	}

	assert.Equal(t, []string{"1", "2"}, selectPurge(messages, "", 2, now))
	assert.Equal(t, []string{"1", "3"}, selectPurge(messages, "a", 10, now))
	assert.Empty(t, selectPurge(messages, "c", 10, now))
}

func TestSnipeEmbed(t *testing.T) {
	edited := snipe.Message{Author: "alice", Content: "after", Before: "before", Links: []string{"https://example.com/"}}
	embed := snipeEmbed(edited, 1, 3)
	require.Len(t, embed.Fields, 3)
	assert.Equal(t, "before", embed.Fields[0].Value)
	assert.Equal(t, "after", embed.Fields[1].Value)
	assert.Equal(t, "1/3", embed.Footer.Text)

	deleted := snipeEmbed(snipe.Message{Author: "bob", Content: "gone"}, 2, 2)
	assert.Equal(t, "gone", deleted.Description)
	assert.Empty(t, deleted.Fields)
}

func TestCasePageClampsPage(t *testing.T) {
	pages := moderation.Paginate([]storage.Case{
		{ID: 3, Type: storage.CaseBan, Target: "t"},
		{ID: 2, Type: storage.CaseWarn, Target: "t"},
		{ID: 1, Type: storage.CaseKick, Target: "t"},
	}, 2)

	last := casePage("Cases", pages, 9, 0)
	assert.Equal(t, "Page 2/2", last.Footer.Text)
	assert.Equal(t, "1: Kick | <@t> | <t:0>", last.Description)

	first := casePage("Cases", pages, 0, 0)
	assert.Equal(t, "Page 1/2", first.Footer.Text)
}

func TestToSnipeSkipsBots(t *testing.T) {
	_, ok := toSnipe(&discordgo.Message{Author: &discordgo.User{ID: "b", Bot: true}, Content: "hi"})
	assert.False(t, ok)
	_, ok = toSnipe(&discordgo.Message{Author: &discordgo.User{ID: "u"}})
	assert.False(t, ok)
	msg, ok := toSnipe(&discordgo.Message{ID: "m", ChannelID: "c", Author: &discordgo.User{ID: "u", Username: "user"}, Content: "hi"})
	assert.True(t, ok)
	assert.Equal(t, "user", msg.Author)
}

type fakeMessenger struct {
	dmErr error
	sent  map[string][]*discordgo.MessageSend
}

func (f *fakeMessenger) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	if f.dmErr != nil {
		return nil, f.dmErr
	}
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeMessenger) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sent == nil {
		f.sent = map[string][]*discordgo.MessageSend{}
	}
	f.sent[channelID] = append(f.sent[channelID], data)
	return &discordgo.Message{ChannelID: channelID}, nil
}

func TestNotifyWarnedSendsDM(t *testing.T) {
	dm := &fakeMessenger{}
	user := &discordgo.User{ID: "t", Username: "target"}
	embed := warningEmbed("Guild", moderation.Result{Case: storage.Case{ID: 4, Reason: "spam"}}, 0)

	assert.True(t, notifyWarned(context.Background(), dm, "c1", user, embed, zap.NewNop()))
	require.Len(t, dm.sent["dm-t"], 1)
	assert.Empty(t, dm.sent["c1"])
	assert.Contains(t, dm.sent["dm-t"][0].Embeds[0].Fields[0].Value, "`4`")
}

func TestNotifyWarnedFallsBackToChannel(t *testing.T) {
	dm := &fakeMessenger{dmErr: errors.New("Cannot send messages to this user")}
	user := &discordgo.User{ID: "t", Username: "target"}
	embed := warningEmbed("Guild", moderation.Result{Case: storage.Case{ID: 4, Reason: "spam"}}, 0)

	assert.False(t, notifyWarned(context.Background(), dm, "c1", user, embed, zap.NewNop()))
	require.Len(t, dm.sent["c1"], 1)
	msg := dm.sent["c1"][0]
	assert.Equal(t, "<@t>", msg.Content)
	assert.Equal(t, []string{"t"}, msg.AllowedMentions.Users)
	assert.Equal(t, "Guild | Please enable DMs, target.", msg.Embeds[0].Footer.Text)
	assert.Equal(t, "Guild", embed.Footer.Text)
}

func TestSettingsEmbedShowsGivenNextCase(t *testing.T) {
	guild := storage.Guild{Prefix: "s!", NextCase: 1, DisableSnipe: true}
	embed := settingsEmbed(guild, 7, 0)

	fields := map[string]string{}
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	assert.Equal(t, "7", fields["Next case"])
	assert.Equal(t, "`s!`", fields["Prefix"])
	assert.Equal(t, "Not set", fields["Log channel"])
	assert.Equal(t, "Disabled", fields["Snipes"])
}
