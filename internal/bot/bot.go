package bot

import (
	"context"
	"time"

	"spanner/internal/analytics"
	"spanner/internal/config"
	"spanner/internal/guildconf"
	"spanner/internal/moderation"
	"spanner/internal/modules/audit"
	"spanner/internal/modules/polls"
	"spanner/internal/modules/snipe"
	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// stalePendingAge is how old a pending case must be before startup reports it.
const stalePendingAge = time.Minute

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	guilds     *guildconf.Accessor
	audit      *audit.Emitter
	analytics  *analytics.Service
	session    *discordgo.Session
	moderation *moderation.Service
	cases      *moderation.Cases
	polls      *polls.Service
	sweeper    *polls.Sweeper
	snipes     *snipe.Cache
	registry   *Registry
	prompts    *prompts
	cancel     context.CancelFunc
	done       chan struct{}
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store, auditEmitter *audit.Emitter, analyticsService *analytics.Service) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token())
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans |
		discordgo.IntentsMessageContent
	// deleted and edited messages are sniped from the state cache
	session.State.MaxMessageCount = cfg.Snipe.Capacity

	guilds := guildconf.New(store)
	auditEmitter.SetPoster(session)

	b := &Bot{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		guilds:    guilds,
		audit:     auditEmitter,
		analytics: analyticsService,
		session:   session,
		snipes:    snipe.New(cfg.Snipe.Capacity),
		prompts:   newPrompts(),
	}

	actions := &discordActions{session: session}
	b.moderation = moderation.NewService(guilds, store, actions, auditEmitter, logger,
		moderation.WithConfirmTimeout(cfg.ConfirmTimeout()))
	b.cases = moderation.NewCases(guilds, store, auditEmitter, logger)
	b.polls = polls.NewService(store, session, logger)
	b.sweeper = polls.NewSweeper(store, session, logger,
		polls.WithInterval(cfg.SweepInterval()),
		polls.WithAuditor(auditEmitter))

	b.registry = NewRegistry()
	if err := b.registry.Register(b.commands()...); err != nil {
		return nil, err
	}
	analyticsService.SetRuntime(b)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageDelete)
	b.session.AddHandler(b.onMessageDeleteBulk)
	b.session.AddHandler(b.onMessageUpdate)
	b.session.AddHandler(b.onChannelDelete)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return errors.Wrap(err, "open gateway")
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.reportStalePending()

	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		b.sweeper.Run(ctx)
	}()

	return nil
}

func (b *Bot) Close(ctx context.Context) {
	if b.cancel != nil {
		b.cancel()
		select {
		case <-b.done:
		case <-ctx.Done():
			b.logger.Warn("poll sweeper did not stop in time")
		}
	}
	if b.session != nil {
		_ = b.session.Close()
	}
}

// GuildCount is the number of guilds the gateway reported.
func (b *Bot) GuildCount() int {
	if b.session.State == nil {
		return 0
	}
	b.session.State.RLock()
	defer b.session.State.RUnlock()
	return len(b.session.State.Guilds)
}

func (b *Bot) Latency() time.Duration {
	return b.session.HeartbeatLatency()
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready",
		zap.String("user", event.User.Username),
		zap.Int("guilds", len(event.Guilds)))
}

// reportStalePending logs cases whose platform action never finished.
// They are left in place for an operator to look at.
func (b *Bot) reportStalePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stale, err := b.store.ListStalePendingCases(ctx, time.Now().Add(-stalePendingAge))
	if err != nil {
		b.logger.Error("list stale pending cases failed", zap.Error(err))
		return
	}
	for _, c := range stale {
		b.logger.Warn("case left pending",
			zap.String("entry_id", c.EntryID),
			zap.Int("case", c.ID),
			zap.String("guild_entry_id", c.GuildEntryID),
			zap.String("type", c.Type.String()))
	}
}

// registerCommands overwrites the application's commands. In debug mode the
// commands go to the configured test guilds only, which update instantly.
func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	defs := b.registry.Definitions()

	if b.cfg.Debug {
		for _, guildID := range b.cfg.SlashGuilds {
			if _, err := b.session.ApplicationCommandBulkOverwrite(appID, guildID, defs); err != nil {
				return errors.Wrapf(err, "register commands in guild %s", guildID)
			}
		}
		b.logger.Info("commands registered", zap.Int("commands", len(defs)), zap.Strings("guilds", b.cfg.SlashGuilds))
		return nil
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, "", defs); err != nil {
		return errors.Wrap(err, "register global commands")
	}
	b.logger.Info("commands registered", zap.Int("commands", len(defs)))
	return nil
}
