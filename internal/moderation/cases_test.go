package moderation

import (
	"context"
	"strings"
	"testing"

	"spanner/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCases(t *testing.T, f *fixture, n int) storage.Guild {
	t.Helper()
	guild, err := f.guilds.GetOrCreate(context.Background(), "g1")
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		target := "10"
		if i%2 == 1 {
			target = "11"
		}
		_, err := f.store.CreateCase(context.Background(), storage.NewCase{GuildEntryID: guild.EntryID, Moderator: moderator.ID, Target: target, Reason: "spam", Type: storage.CaseWarn})
		require.NoError(t, err)
	}
	return guild
}

func TestEditReasonAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCases(t, f, 3)

	_, err := f.cases.EditReason(ctx, "g1", peer, "3", "x")
	assert.Equal(t, KindPermission, KindOf(err))
	got, err := f.cases.View(ctx, "g1", "3")
	require.NoError(t, err)
	assert.Equal(t, "spam", got.Reason)

	_, err = f.cases.EditReason(ctx, "g1", Member{ID: "50", IsAdmin: true}, "3", "x")
	require.NoError(t, err)
	got, _ = f.cases.View(ctx, "g1", "#3")
	assert.Equal(t, "x", got.Reason)

	_, err = f.cases.EditReason(ctx, "g1", moderator, "Warn (#3)", "by the moderator")
	require.NoError(t, err)
	assert.Len(t, f.audit.edited, 2)
}

func TestEditReasonValidatesLength(t *testing.T) {
	f := newFixture(t)
	seedCases(t, f, 1)

	_, err := f.cases.EditReason(context.Background(), "g1", moderator, "1", strings.Repeat("a", storage.MaxReasonLength+1))
	assert.Equal(t, KindValidation, KindOf(err))
	_, err = f.cases.EditReason(context.Background(), "g1", moderator, "1", "")
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestViewByEntryIDAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCases(t, f, 1)

	c, err := f.cases.View(ctx, "g1", "1")
	require.NoError(t, err)
	byEntry, err := f.cases.View(ctx, "g1", c.EntryID)
	require.NoError(t, err)
	assert.Equal(t, 1, byEntry.ID)

	_, err = f.cases.View(ctx, "g1", "2")
	assert.ErrorIs(t, err, ErrCaseNotFound)
	_, err = f.cases.View(ctx, "g1", "nonsense")
	assert.ErrorIs(t, err, ErrCaseNotFound)
	_, err = f.cases.View(ctx, "other", "1")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestDeleteCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCases(t, f, 2)

	_, err := f.cases.Delete(ctx, "g1", peer, "2", &fakePrompt{answer: true})
	assert.Equal(t, KindPermission, KindOf(err))

	_, err = f.cases.Delete(ctx, "g1", moderator, "2", &fakePrompt{answer: false})
	assert.ErrorIs(t, err, ErrDeclined)

	deleted, err := f.cases.Delete(ctx, "g1", moderator, "2", &fakePrompt{answer: true})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted.ID)
	assert.Len(t, f.audit.deleted, 1)

	_, err = f.cases.View(ctx, "g1", "2")
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestListPaginates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seedCases(t, f, 7)

	_, err := f.cases.List(ctx, "g1", member, "", 0)
	assert.Equal(t, KindPermission, KindOf(err))
	_, err = f.cases.List(ctx, "g1", moderator, "", 26)
	assert.Equal(t, KindValidation, KindOf(err))

	pages, err := f.cases.List(ctx, "g1", moderator, "", 3)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Len(t, pages[2], 1)
	assert.Equal(t, 7, pages[0][0].ID)
	assert.Equal(t, 1, pages[2][0].ID)

	pages, err = f.cases.List(ctx, "g1", moderator, "11", 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Len(t, pages[0], 3)
}

func TestPaginate(t *testing.T) {
	assert.Empty(t, Paginate([]int{}, 5))
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, Paginate([]int{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, [][]int{{1, 2, 3}}, Paginate([]int{1, 2, 3}, 10))
}

func TestParseCaseRef(t *testing.T) {
	for input, want := range map[string]int{"4": 4, "#12": 12, "Ban by mod (#7)": 7} {
		got, ok := ParseCaseRef(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}
	_, ok := ParseCaseRef("0")
	assert.False(t, ok)
	_, ok = ParseCaseRef("abc")
	assert.False(t, ok)
}

func TestFormatCaseLine(t *testing.T) {
	line := FormatCaseLine(storage.Case{ID: 3, Type: storage.CaseTempMute, Target: "42", CreatedAt: 1700000000})
	assert.Equal(t, "3: Temp-Mute | <@42> | <t:1700000000>", line)
}
