package audit

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	entries []storage.AuditLog
}

func (m *memoryStore) AddAuditLog(_ context.Context, entry storage.AuditLog) error {
	m.entries = append(m.entries, entry)
	return nil
}

type fakePoster struct {
	channels []string
	embeds   []*discordgo.MessageEmbed
	err      error
}

func (f *fakePoster) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channels = append(f.channels, channelID)
	f.embeds = append(f.embeds, embed)
	return &discordgo.Message{}, f.err
}

func guildWithLog(channel string) storage.Guild {
	g := storage.Guild{EntryID: "e", ID: "g1"}
	if channel != "" {
		g.LogChannel = sql.NullString{String: channel, Valid: true}
	}
	return g
}

func TestCaseCreatedPostsEmbed(t *testing.T) {
	store := &memoryStore{}
	poster := &fakePoster{}
	emitter := New(store, poster, nil)

	expires := time.Unix(1700003600, 0)
	c := storage.Case{ID: 4, Type: storage.CaseTempMute, Moderator: "1", Target: "2", Reason: "flooding", CreatedAt: 1700000000, ExpireAt: sql.NullInt64{Int64: expires.Unix(), Valid: true}}
	emitter.CaseCreated(context.Background(), guildWithLog("55"), c)

	require.Len(t, store.entries, 1)
	assert.Equal(t, "case_created", store.entries[0].Event)
	require.Len(t, poster.embeds, 1)
	assert.Equal(t, "55", poster.channels[0])
	embed := poster.embeds[0]
	assert.Equal(t, "Case #4 - Temp-Mute", embed.Title)
	assert.Contains(t, embed.Description, "**Expires:** <t:1700003600:R>")
	require.Len(t, embed.Fields, 1)
	assert.Equal(t, "flooding", embed.Fields[0].Value)
}

func TestCaseCreatedWithoutLogChannel(t *testing.T) {
	store := &memoryStore{}
	poster := &fakePoster{}
	New(store, poster, nil).CaseCreated(context.Background(), guildWithLog(""), storage.Case{ID: 1, Reason: "r"})

	assert.Len(t, store.entries, 1)
	assert.Empty(t, poster.embeds)
}

func TestPostFailureIsSwallowed(t *testing.T) {
	poster := &fakePoster{err: errors.New("missing access")}
	emitter := New(&memoryStore{}, poster, nil)

	assert.NotPanics(t, func() {
		emitter.CaseDeleted(context.Background(), guildWithLog("55"), storage.Case{ID: 1, Type: storage.CaseBan}, "9")
	})
	assert.Len(t, poster.embeds, 1)
}

func TestChunkReason(t *testing.T) {
	long := strings.Repeat("a", 700)
	chunks := chunkReason(long+"\n"+long+"\nshort", fieldLimit)
	require.Len(t, chunks, 2)
	assert.Equal(t, long, chunks[0])
	assert.Equal(t, long+"\nshort", chunks[1])

	huge := chunkReason(strings.Repeat("b", 2000), fieldLimit)
	require.Len(t, huge, 1)
	assert.Equal(t, fieldLimit, len([]rune(huge[0])))
	assert.True(t, strings.HasSuffix(huge[0], "..."))
}
