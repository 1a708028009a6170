package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"time"

	"emperror.dev/errors"
)

var (
	ErrAlreadyVoted = errors.New("voter has already voted")
	ErrPollEnded    = errors.New("poll has ended")
)

// Votes maps a voter id to their choice (true = yes). Stored as a JSON object.
type Votes map[string]bool

func (v Votes) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(map[string]bool(v))
	return string(data), err
}

func (v *Votes) Scan(src any) error {
	var data []byte
	switch value := src.(type) {
	case nil:
		*v = Votes{}
		return nil
	case string:
		data = []byte(value)
	case []byte:
		data = value
	default:
		return errors.Errorf("unsupported votes type %T", src)
	}
	out := Votes{}
	if err := json.Unmarshal(data, &out); err != nil {
		return errors.Wrap(err, "decode votes")
	}
	*v = out
	return nil
}

// Tally returns the number of yes and no votes.
func (v Votes) Tally() (yes, no int) {
	for _, choice := range v {
		if choice {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

type Poll struct {
	ID        int64          `db:"id"`
	GuildID   string         `db:"guild_id"`
	ChannelID string         `db:"channel_id"`
	MessageID sql.NullString `db:"message_id"`
	Owner     string         `db:"owner"`
	Question  string         `db:"question"`
	EndsAt    float64        `db:"ends_at"`
	Voted     Votes          `db:"voted"`
	Ended     bool           `db:"ended"`
}

func (p Poll) Ends() time.Time {
	sec := int64(p.EndsAt)
	nsec := int64((p.EndsAt - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

const pollColumns = `id, guild_id, channel_id, message_id, owner, question, ends_at, voted, ended`

func (s *Store) CreatePoll(ctx context.Context, guildID, channelID, owner, question string, endsAt time.Time) (Poll, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO simple_polls (guild_id, channel_id, owner, question, ends_at, voted, ended)
		VALUES (?, ?, ?, ?, ?, '{}', 0)
	`, guildID, channelID, owner, question, epochSeconds(endsAt))
	if err != nil {
		return Poll{}, errors.Wrap(err, "insert poll")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Poll{}, errors.Wrap(err, "poll id")
	}
	return s.GetPoll(ctx, id)
}

// SetPollMessage records where the poll was posted.
func (s *Store) SetPollMessage(ctx context.Context, id int64, channelID, messageID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE simple_polls SET channel_id = ?, message_id = ? WHERE id = ?`, channelID, messageID, id)
	return errors.Wrap(err, "set poll message")
}

func (s *Store) GetPoll(ctx context.Context, id int64) (Poll, error) {
	var poll Poll
	if err := s.db.GetContext(ctx, &poll, `SELECT `+pollColumns+` FROM simple_polls WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Poll{}, ErrNotFound
		}
		return Poll{}, errors.Wrap(err, "get poll")
	}
	return poll, nil
}

// ListDuePolls returns polls whose end time has passed and that are not yet ended.
func (s *Store) ListDuePolls(ctx context.Context, now time.Time) ([]Poll, error) {
	var polls []Poll
	err := s.db.SelectContext(ctx, &polls, `SELECT `+pollColumns+` FROM simple_polls WHERE ends_at <= ? AND ended = 0 ORDER BY ends_at`, epochSeconds(now))
	return polls, errors.Wrap(err, "list due polls")
}

func (s *Store) MarkPollEnded(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE simple_polls SET ended = 1 WHERE id = ?`, id)
	return errors.Wrap(err, "mark poll ended")
}

func (s *Store) DeletePoll(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM simple_polls WHERE id = ?`, id)
	return errors.Wrap(err, "delete poll")
}

func (s *Store) CountOpenPolls(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM simple_polls WHERE ended = 0`)
	return count, errors.Wrap(err, "count polls")
}

// RecordVote adds voterID's choice. A voter can vote once; the vote can not
// be changed afterwards.
func (s *Store) RecordVote(ctx context.Context, id int64, voterID string, yes bool) (poll Poll, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Poll{}, errors.Wrap(err, "begin vote")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = tx.GetContext(ctx, &poll, `SELECT `+pollColumns+` FROM simple_polls WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
			return Poll{}, err
		}
		err = errors.Wrap(err, "load poll")
		return Poll{}, err
	}
	if poll.Ended || !poll.Ends().After(s.now()) {
		err = ErrPollEnded
		return Poll{}, err
	}
	if _, voted := poll.Voted[voterID]; voted {
		err = ErrAlreadyVoted
		return Poll{}, err
	}
	if poll.Voted == nil {
		poll.Voted = Votes{}
	}
	poll.Voted[voterID] = yes

	if _, err = tx.ExecContext(ctx, `UPDATE simple_polls SET voted = ? WHERE id = ?`, poll.Voted, id); err != nil {
		err = errors.Wrap(err, "store vote")
		return Poll{}, err
	}
	if err = tx.Commit(); err != nil {
		err = errors.Wrap(err, "commit vote")
		return Poll{}, err
	}
	return poll, nil
}
