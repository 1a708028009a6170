// Package polls implements yes/no polls with persistent buttons and the
// sweeper that closes them once they expire.
package polls

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"spanner/internal/storage"
	"spanner/internal/utils"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	DefaultDuration = "1 day"
	MaxDuration     = 2635200 * time.Second
	maxQuestion     = 256

	ExpiredDescription = "This poll has expired. Press `see results` to see the results."
	ColourOpen         = 0x3498DB
	ColourExpired      = 0xED4245
)

// Button actions encoded in custom ids as poll:<id>:<action>.
const (
	ActionYes     = "yes"
	ActionNo      = "no"
	ActionResults = "results"
	ActionDelete  = "delete"
	ActionVoters  = "voters"
)

var (
	ErrTooLong  = errors.New("poll duration must be less than a month")
	ErrNotOwner = errors.New("only the poll owner can delete it")
)

type Store interface {
	CreatePoll(ctx context.Context, guildID, channelID, owner, question string, endsAt time.Time) (storage.Poll, error)
	SetPollMessage(ctx context.Context, id int64, channelID, messageID string) error
	GetPoll(ctx context.Context, id int64) (storage.Poll, error)
	ListDuePolls(ctx context.Context, now time.Time) ([]storage.Poll, error)
	MarkPollEnded(ctx context.Context, id int64) error
	DeletePoll(ctx context.Context, id int64) error
	RecordVote(ctx context.Context, id int64, voterID string, yes bool) (storage.Poll, error)
}

// Channels is the part of the platform client polls need.
// *discordgo.Session satisfies it.
type Channels interface {
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
}

type Service struct {
	store    Store
	channels Channels
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Store, channels Channels, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, channels: channels, logger: logger, now: time.Now}
}

type CreateRequest struct {
	GuildID   string
	ChannelID string
	Owner     string
	OwnerName string
	Question  string
	Duration  string
}

// Create stores the poll and posts it. The row is removed again when the
// message can not be sent.
func (s *Service) Create(ctx context.Context, req CreateRequest) (storage.Poll, *discordgo.Message, error) {
	if req.Duration == "" {
		req.Duration = DefaultDuration
	}
	d, err := utils.ParseDuration(req.Duration)
	if err != nil {
		return storage.Poll{}, nil, err
	}
	if d > MaxDuration {
		return storage.Poll{}, nil, ErrTooLong
	}
	question := req.Question
	if utf8.RuneCountInString(question) > maxQuestion {
		question = string([]rune(question)[:maxQuestion])
	}

	ends := s.now().Add(d)
	poll, err := s.store.CreatePoll(ctx, req.GuildID, req.ChannelID, req.Owner, question, ends)
	if err != nil {
		return storage.Poll{}, nil, err
	}

	msg, err := s.channels.ChannelMessageSendComplex(req.ChannelID, &discordgo.MessageSend{
		Embeds: []*discordgo.MessageEmbed{{
			Title:       question,
			Description: fmt.Sprintf("Poll closes <t:%d:R>.", ends.Unix()),
			Color:       ColourOpen,
			Author:      &discordgo.MessageEmbedAuthor{Name: req.OwnerName + " asks..."},
			Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Poll ID: %d", poll.ID)},
		}},
		Components: Components(poll.ID, false),
	}, discordgo.WithContext(ctx))
	if err != nil {
		if delErr := s.store.DeletePoll(context.WithoutCancel(ctx), poll.ID); delErr != nil {
			s.logger.Error("remove unposted poll failed", zap.Int64("poll_id", poll.ID), zap.Error(delErr))
		}
		return storage.Poll{}, nil, errors.Wrap(err, "post poll")
	}
	if err := s.store.SetPollMessage(ctx, poll.ID, msg.ChannelID, msg.ID); err != nil {
		return storage.Poll{}, nil, err
	}
	poll.ChannelID = msg.ChannelID
	poll.MessageID.String, poll.MessageID.Valid = msg.ID, true
	return poll, msg, nil
}

func (s *Service) Vote(ctx context.Context, pollID int64, voterID string, yes bool) (storage.Poll, error) {
	return s.store.RecordVote(ctx, pollID, voterID, yes)
}

func (s *Service) Get(ctx context.Context, pollID int64) (storage.Poll, error) {
	return s.store.GetPoll(ctx, pollID)
}

// Delete removes the poll and its message. Only the owner may do so.
func (s *Service) Delete(ctx context.Context, pollID int64, actorID string) error {
	poll, err := s.store.GetPoll(ctx, pollID)
	if err != nil {
		return err
	}
	if poll.Owner != actorID {
		return ErrNotOwner
	}
	if poll.MessageID.Valid {
		if err := s.channels.ChannelMessageDelete(poll.ChannelID, poll.MessageID.String, discordgo.WithContext(ctx)); err != nil {
			s.logger.Warn("delete poll message failed", zap.Int64("poll_id", poll.ID), zap.Error(err))
		}
	}
	return s.store.DeletePoll(ctx, pollID)
}

// Results renders the tally of a poll.
func Results(poll storage.Poll) string {
	yes, no := poll.Voted.Tally()
	total := yes + no
	if total == 0 {
		return "Nobody has voted yet."
	}
	return fmt.Sprintf("**Yes**: %d (%d%%)\n**No**: %d (%d%%)\n**Total**: %d", yes, yes*100/total, no, no*100/total, total)
}

// Voters splits the voters by choice, sorted for stable output.
func Voters(poll storage.Poll) (yes, no []string) {
	for voter, choice := range poll.Voted {
		if choice {
			yes = append(yes, voter)
		} else {
			no = append(no, voter)
		}
	}
	sort.Strings(yes)
	sort.Strings(no)
	return yes, no
}

func CustomID(pollID int64, action string) string {
	return fmt.Sprintf("poll:%d:%s", pollID, action)
}

// ParseCustomID is the inverse of CustomID.
func ParseCustomID(customID string) (int64, string, bool) {
	parts := strings.Split(customID, ":")
	if len(parts) != 3 || parts[0] != "poll" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, parts[2], true
}

// Components builds the poll's buttons. Voting is disabled once the poll ended.
func Components(pollID int64, ended bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.Button{Label: "Yes", Style: discordgo.SuccessButton, CustomID: CustomID(pollID, ActionYes), Disabled: ended},
			discordgo.Button{Label: "No", Style: discordgo.DangerButton, CustomID: CustomID(pollID, ActionNo), Disabled: ended},
			discordgo.Button{Label: "See results", Style: discordgo.PrimaryButton, CustomID: CustomID(pollID, ActionResults)},
			discordgo.Button{Label: "Delete", Style: discordgo.SecondaryButton, CustomID: CustomID(pollID, ActionDelete)},
		}},
	}
}
