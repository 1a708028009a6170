package moderation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"spanner/internal/guildconf"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method string
	userID string
	reason string
	until  time.Time
	purge  int
}

type fakeActions struct {
	calls  []call
	banned map[string]bool
	fail   map[string]error
}

func newFakeActions() *fakeActions {
	return &fakeActions{banned: map[string]bool{}, fail: map[string]error{}}
}

func (f *fakeActions) record(c call) error {
	f.calls = append(f.calls, c)
	return f.fail[c.method]
}

func (f *fakeActions) Ban(_ context.Context, _, userID, reason string, purgeDays int) error {
	return f.record(call{method: "ban", userID: userID, reason: reason, purge: purgeDays})
}

func (f *fakeActions) Kick(_ context.Context, _, userID, reason string) error {
	return f.record(call{method: "kick", userID: userID, reason: reason})
}

func (f *fakeActions) Timeout(_ context.Context, _, userID string, until time.Time, reason string) error {
	return f.record(call{method: "timeout", userID: userID, reason: reason, until: until})
}

func (f *fakeActions) RemoveTimeout(_ context.Context, _, userID, reason string) error {
	return f.record(call{method: "remove_timeout", userID: userID, reason: reason})
}

func (f *fakeActions) FetchBan(_ context.Context, _, userID string) (*BanEntry, error) {
	if f.banned[userID] {
		return &BanEntry{UserID: userID}, nil
	}
	return nil, nil
}

func (f *fakeActions) Unban(_ context.Context, _, userID, reason string) error {
	return f.record(call{method: "unban", userID: userID, reason: reason})
}

type fakePrompt struct {
	answer bool
	asked  []Confirmation
}

func (f *fakePrompt) Confirm(_ context.Context, c Confirmation) (bool, error) {
	f.asked = append(f.asked, c)
	return f.answer, nil
}

type recordingAuditor struct {
	created []storage.Case
	edited  []storage.Case
	deleted []storage.Case
}

func (r *recordingAuditor) CaseCreated(_ context.Context, _ storage.Guild, c storage.Case) {
	r.created = append(r.created, c)
}

func (r *recordingAuditor) CaseEdited(_ context.Context, _ storage.Guild, c storage.Case, _ string, _ []string) {
	r.edited = append(r.edited, c)
}

func (r *recordingAuditor) CaseDeleted(_ context.Context, _ storage.Guild, c storage.Case, _ string) {
	r.deleted = append(r.deleted, c)
}

type fixture struct {
	store   *storage.Store
	guilds  *guildconf.Accessor
	actions *fakeActions
	audit   *recordingAuditor
	service *Service
	cases   *Cases
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, store.Migrate())

	f := &fixture{
		store:   store,
		guilds:  guildconf.New(store),
		actions: newFakeActions(),
		audit:   &recordingAuditor{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewService(f.guilds, store, f.actions, f.audit, nil, WithClock(func() time.Time { return f.now }))
	f.cases = NewCases(f.guilds, store, f.audit, nil)
	return f
}

var (
	owner     = Member{ID: "1", TopRole: 10, IsOwner: true}
	moderator = Member{ID: "2", TopRole: 5, CanModerate: true}
	member    = Member{ID: "3", TopRole: 1}
	peer      = Member{ID: "4", TopRole: 5, CanModerate: true}
)

func restError(code int, msg string) error {
	return &discordgo.RESTError{
		Response: &http.Response{Status: "403 Forbidden", StatusCode: http.StatusForbidden},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: msg},
	}
}

func TestExecuteBanCommitsCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := member
	prompt := &fakePrompt{answer: true}

	res, err := f.service.Execute(ctx, Action{Type: Ban, GuildID: "g1", Actor: moderator, Target: &target, Reason: "spam", Prompt: prompt})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Case.ID)
	assert.Equal(t, storage.CaseBan, res.Case.Type)
	require.Len(t, prompt.asked, 1)
	require.Len(t, f.actions.calls, 1)
	assert.Equal(t, "Case#"+res.Case.EntryID+"| spam", f.actions.calls[0].reason)
	assert.Equal(t, 1, f.actions.calls[0].purge)
	require.Len(t, f.audit.created, 1)

	stored, err := f.store.GetCase(ctx, res.Guild.EntryID, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.CaseStatusCommitted, stored.Status)
}

func TestExecuteRollsBackOnPlatformFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := member
	f.actions.fail["ban"] = restError(50013, "Missing Permissions")

	guild, err := f.guilds.GetOrCreate(ctx, "g1")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err := f.store.CreateCase(ctx, storage.NewCase{GuildEntryID: guild.EntryID, Moderator: "2", Target: "9", Reason: "old", Type: storage.CaseWarn})
		require.NoError(t, err)
	}

	_, err = f.service.Execute(ctx, Action{Type: Ban, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.Error(t, err)
	assert.Equal(t, KindExternal, KindOf(err))
	assert.Contains(t, err.(*Error).Message, "Missing Permissions")

	_, err = f.store.GetCase(ctx, guild.EntryID, 5)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	next, err := f.store.NextCaseNumber(ctx, guild.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 5, next)
	assert.Empty(t, f.audit.created)

	c, err := f.store.CreateCase(ctx, storage.NewCase{GuildEntryID: guild.EntryID, Moderator: "2", Target: "9", Reason: "again", Type: storage.CaseWarn})
	require.NoError(t, err)
	assert.Equal(t, 5, c.ID)
}

func TestExecuteRollsBackOnUnexpectedFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	target := member
	f.actions.fail["kick"] = errors.New("connection reset")

	_, err := f.service.Execute(ctx, Action{Type: Kick, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))

	guild, _ := f.guilds.GetOrCreate(ctx, "g1")
	cases, err := f.store.ListCases(ctx, guild.EntryID, "")
	require.NoError(t, err)
	assert.Empty(t, cases)
	stale, err := f.store.ListStalePendingCases(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestExecuteRejectsLowerRankedActor(t *testing.T) {
	f := newFixture(t)
	target := peer

	_, err := f.service.Execute(context.Background(), Action{Type: Kick, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	assert.Equal(t, KindPermission, KindOf(err))
	assert.Empty(t, f.actions.calls)

	guild, _ := f.guilds.GetOrCreate(context.Background(), "g1")
	next, _ := f.store.NextCaseNumber(context.Background(), guild.EntryID)
	assert.Equal(t, 1, next)
}

func TestExecuteOwnerBypassesHierarchy(t *testing.T) {
	f := newFixture(t)
	target := Member{ID: "5", TopRole: 50}

	_, err := f.service.Execute(context.Background(), Action{Type: Kick, GuildID: "g1", Actor: owner, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.NoError(t, err)
}

func TestExecuteChecksBotHierarchy(t *testing.T) {
	f := newFixture(t)
	target := Member{ID: "5", TopRole: 8}
	bot := Member{ID: "99", TopRole: 7}

	_, err := f.service.Execute(context.Background(), Action{Type: Ban, GuildID: "g1", Actor: owner, Target: &target, Bot: &bot, Prompt: &fakePrompt{answer: true}})
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestExecuteUnmuteAllowsEqualRole(t *testing.T) {
	f := newFixture(t)
	target := peer

	_, err := f.service.Execute(context.Background(), Action{Type: Unmute, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.NoError(t, err)
	require.Len(t, f.actions.calls, 1)
	assert.Equal(t, "remove_timeout", f.actions.calls[0].method)
}

func TestExecuteRejectsSelfTarget(t *testing.T) {
	f := newFixture(t)
	self := moderator

	_, err := f.service.Execute(context.Background(), Action{Type: Warn, GuildID: "g1", Actor: moderator, Target: &self})
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestExecuteMuteDurationBounds(t *testing.T) {
	f := newFixture(t)
	target := member

	for _, d := range []string{"30 seconds", "29 days", "whenever"} {
		_, err := f.service.Execute(context.Background(), Action{Type: Mute, GuildID: "g1", Actor: moderator, Target: &target, Duration: d, Prompt: &fakePrompt{answer: true}})
		assert.Equal(t, KindValidation, KindOf(err), d)
	}
	assert.Empty(t, f.actions.calls)

	res, err := f.service.Execute(context.Background(), Action{Type: Mute, GuildID: "g1", Actor: moderator, Target: &target, Duration: "1h30m", Prompt: &fakePrompt{answer: true}})
	require.NoError(t, err)
	assert.Equal(t, storage.CaseTempMute, res.Case.Type)
	expires, ok := res.Case.Expires()
	require.True(t, ok)
	assert.Equal(t, f.now.Add(90*time.Minute).Unix(), expires.Unix())
	require.Len(t, f.actions.calls, 1)
	assert.Equal(t, f.now.Add(90*time.Minute), f.actions.calls[0].until)
}

func TestExecuteDeclinedLeavesNoCase(t *testing.T) {
	f := newFixture(t)
	target := member
	prompt := &fakePrompt{answer: false}

	_, err := f.service.Execute(context.Background(), Action{Type: Kick, GuildID: "g1", Actor: moderator, Target: &target, Prompt: prompt})
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Len(t, prompt.asked, 1)
	assert.Empty(t, f.actions.calls)

	guild, _ := f.guilds.GetOrCreate(context.Background(), "g1")
	next, _ := f.store.NextCaseNumber(context.Background(), guild.EntryID)
	assert.Equal(t, 1, next)
}

func TestExecuteBanStateChecks(t *testing.T) {
	f := newFixture(t)
	f.actions.banned["7"] = true

	_, err := f.service.Execute(context.Background(), Action{Type: Hackban, GuildID: "g1", Actor: moderator, TargetID: "7", Prompt: &fakePrompt{answer: true}})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.service.Execute(context.Background(), Action{Type: Unban, GuildID: "g1", Actor: moderator, TargetID: "8", Prompt: &fakePrompt{answer: true}})
	assert.Equal(t, KindValidation, KindOf(err))

	res, err := f.service.Execute(context.Background(), Action{Type: Unban, GuildID: "g1", Actor: moderator, TargetID: "7", Prompt: &fakePrompt{answer: true}})
	require.NoError(t, err)
	assert.Equal(t, storage.CaseUnban, res.Case.Type)
}

func TestExecuteSoftbanBansThenUnbans(t *testing.T) {
	f := newFixture(t)
	target := member

	res, err := f.service.Execute(context.Background(), Action{Type: Softban, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.NoError(t, err)
	assert.Equal(t, storage.CaseSoftBan, res.Case.Type)
	require.Len(t, f.actions.calls, 2)
	assert.Equal(t, "ban", f.actions.calls[0].method)
	assert.Equal(t, 7, f.actions.calls[0].purge)
	assert.Equal(t, "unban", f.actions.calls[1].method)
}

func TestExecuteSoftbanKeepsBanWhenUnbanFails(t *testing.T) {
	f := newFixture(t)
	f.actions.fail["unban"] = restError(50013, "Missing Permissions")
	target := member

	res, err := f.service.Execute(context.Background(), Action{Type: Softban, GuildID: "g1", Actor: moderator, Target: &target, Prompt: &fakePrompt{answer: true}})
	require.Error(t, err)
	assert.Equal(t, KindExternal, KindOf(err))
	assert.Contains(t, err.Error(), "Missing Permissions")
	assert.Contains(t, err.Error(), "recorded as a ban in case #1")
	assert.Equal(t, storage.CaseBan, res.Case.Type)

	guild, err := f.guilds.GetOrCreate(context.Background(), "g1")
	require.NoError(t, err)
	stored, err := f.store.GetCase(context.Background(), guild.EntryID, 1)
	require.NoError(t, err)
	assert.Equal(t, storage.CaseBan, stored.Type)
	assert.Equal(t, storage.CaseStatusCommitted, stored.Status)
	require.Len(t, f.audit.created, 1)
	assert.Equal(t, storage.CaseBan, f.audit.created[0].Type)
}

func TestExecuteWarnSkipsPromptAndPlatform(t *testing.T) {
	f := newFixture(t)
	target := member
	prompt := &fakePrompt{answer: false}

	res, err := f.service.Execute(context.Background(), Action{Type: Warn, GuildID: "g1", Actor: moderator, Target: &target, Prompt: prompt})
	require.NoError(t, err)
	assert.Equal(t, DefaultReason, res.Case.Reason)
	assert.Empty(t, prompt.asked)
	assert.Empty(t, f.actions.calls)
	assert.Len(t, f.audit.created, 1)
}

func TestOutranks(t *testing.T) {
	assert.True(t, Outranks(Member{TopRole: 2}, Member{TopRole: 1}, true))
	assert.False(t, Outranks(Member{TopRole: 2}, Member{TopRole: 2}, true))
	assert.True(t, Outranks(Member{TopRole: 2}, Member{TopRole: 2}, false))
	assert.True(t, Outranks(Member{IsOwner: true}, Member{TopRole: 9}, true))
	assert.False(t, Outranks(Member{TopRole: 9}, Member{IsOwner: true}, false))
}
