package polls

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"spanner/internal/metrics"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const DefaultSweepInterval = time.Minute

// Auditor receives an entry for each poll the sweeper closes.
type Auditor interface {
	Log(ctx context.Context, level, guildID, userID, event, details string)
}

// Sweeper closes polls whose end time has passed.
type Sweeper struct {
	store    Store
	channels Channels
	audit    Auditor
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time
}

type SweeperOption func(*Sweeper)

func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithNow(now func() time.Time) SweeperOption {
	return func(s *Sweeper) { s.now = now }
}

func WithAuditor(a Auditor) SweeperOption {
	return func(s *Sweeper) { s.audit = a }
}

func NewSweeper(store Store, channels Channels, logger *zap.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sweeper{
		store:    store,
		channels: channels,
		logger:   logger,
		interval: DefaultSweepInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then on every tick until ctx is done. A
// pass that already started is allowed to finish.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.Pass(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("poll sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Pass closes every due poll and returns how many it handled. Polls whose
// channel or message is gone are deleted; the rest are marked ended even
// when their message could not be edited.
func (s *Sweeper) Pass(ctx context.Context) (int, error) {
	due, err := s.store.ListDuePolls(ctx, s.now())
	if err != nil {
		return 0, err
	}
	for _, poll := range due {
		if err := s.expire(ctx, poll); err != nil {
			return 0, err
		}
	}
	return len(due), nil
}

func (s *Sweeper) expire(ctx context.Context, poll storage.Poll) error {
	log := s.logger.With(zap.Int64("poll_id", poll.ID), zap.String("channel_id", poll.ChannelID))
	log.Info("expired poll")

	if _, err := s.channels.Channel(poll.ChannelID, discordgo.WithContext(ctx)); err != nil {
		if isNotFound(err) {
			log.Info("poll channel gone, deleting poll")
			return s.store.DeletePoll(ctx, poll.ID)
		}
		log.Warn("fetch poll channel failed", zap.Error(err))
	}
	if !poll.MessageID.Valid {
		return s.store.DeletePoll(ctx, poll.ID)
	}
	msg, err := s.channels.ChannelMessage(poll.ChannelID, poll.MessageID.String, discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			log.Info("poll message gone, deleting poll")
			return s.store.DeletePoll(ctx, poll.ID)
		}
		log.Warn("fetch poll message failed", zap.Error(err))
	}

	if msg != nil {
		embed := &discordgo.MessageEmbed{}
		if len(msg.Embeds) > 0 && msg.Embeds[0] != nil {
			copied := *msg.Embeds[0]
			embed = &copied
		}
		embed.Description = ExpiredDescription
		embed.Color = ColourExpired
		embeds := []*discordgo.MessageEmbed{embed}
		components := Components(poll.ID, true)
		edit := &discordgo.MessageEdit{
			ID:         msg.ID,
			Channel:    poll.ChannelID,
			Embeds:     &embeds,
			Components: &components,
		}
		if _, err := s.channels.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
			log.Warn("edit expired poll failed", zap.Error(err))
		}
	}

	if err := s.store.MarkPollEnded(ctx, poll.ID); err != nil {
		return err
	}
	metrics.PollsExpired.Inc()
	if s.audit != nil {
		yes, no := poll.Voted.Tally()
		s.audit.Log(ctx, "INFO", poll.GuildID, poll.Owner, "poll_expired", fmt.Sprintf("poll %d yes=%d no=%d", poll.ID, yes, no))
	}
	return nil
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}
