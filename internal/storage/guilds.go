package storage

import (
	"context"
	"database/sql"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/google/uuid"
)

const (
	DefaultPrefix   = "s!"
	MaxPrefixLength = 16
)

var ErrInvalidPrefix = errors.New("prefix must be between 1 and 16 characters")

type Guild struct {
	EntryID      string         `db:"entry_id"`
	ID           string         `db:"id"`
	Prefix       string         `db:"prefix"`
	LogChannel   sql.NullString `db:"log_channel"`
	DisableSnipe bool           `db:"disable_snipe"`
	NextCase     int            `db:"next_case"`
	CreatedAt    int64          `db:"created_at"`
}

// LogChannelID returns the configured log channel or "".
func (g Guild) LogChannelID() string {
	if g.LogChannel.Valid {
		return g.LogChannel.String
	}
	return ""
}

const guildColumns = `entry_id, id, prefix, log_channel, disable_snipe, next_case, created_at`

// GetOrCreateGuild returns the row for guildID, inserting a default one first
// if none exists. Safe to call concurrently for the same guild.
func (s *Store) GetOrCreateGuild(ctx context.Context, guildID string) (Guild, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guilds (entry_id, id, prefix, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, uuid.NewString(), guildID, DefaultPrefix, s.now().Unix())
	if err != nil {
		return Guild{}, errors.Wrap(err, "insert guild")
	}
	return s.GetGuild(ctx, guildID)
}

func (s *Store) GetGuild(ctx context.Context, guildID string) (Guild, error) {
	var guild Guild
	err := s.db.GetContext(ctx, &guild, `SELECT `+guildColumns+` FROM guilds WHERE id = ?`, guildID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Guild{}, ErrNotFound
		}
		return Guild{}, errors.Wrap(err, "get guild")
	}
	return guild, nil
}

// SetLogChannel stores channelID as the guild's log channel; "" clears it.
func (s *Store) SetLogChannel(ctx context.Context, guildID, channelID string) error {
	return s.updateGuild(ctx, `UPDATE guilds SET log_channel = ? WHERE id = ?`, nullString(channelID), guildID)
}

func (s *Store) SetPrefix(ctx context.Context, guildID, prefix string) error {
	if n := utf8.RuneCountInString(prefix); n < 1 || n > MaxPrefixLength {
		return ErrInvalidPrefix
	}
	return s.updateGuild(ctx, `UPDATE guilds SET prefix = ? WHERE id = ?`, prefix, guildID)
}

func (s *Store) SetSnipeDisabled(ctx context.Context, guildID string, disabled bool) error {
	return s.updateGuild(ctx, `UPDATE guilds SET disable_snipe = ? WHERE id = ?`, boolToInt(disabled), guildID)
}

func (s *Store) updateGuild(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update guild")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountGuilds(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM guilds`)
	return count, errors.Wrap(err, "count guilds")
}
