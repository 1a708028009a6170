// Package moderation implements the moderation actions and the case
// operations behind the slash commands. Every action records a case before
// the platform is asked to act and removes it again when the platform call
// fails.
package moderation

import (
	"context"
	"fmt"
	"time"

	"spanner/internal/metrics"
	"spanner/internal/storage"
	"spanner/internal/utils"

	"emperror.dev/errors"
	"go.uber.org/zap"
)

const (
	DefaultReason  = "No Reason Provided."
	MinMute        = time.Minute
	MaxMute        = 28 * 24 * time.Hour
	maxPurgeDays   = 7
	softbanPurge   = 7
	defaultPurge   = 1
	confirmTimeout = 5 * time.Minute
)

// Member is the part of a guild member the hierarchy check looks at.
type Member struct {
	ID      string
	TopRole int
	IsOwner bool
	IsAdmin bool
	// CanModerate is the Moderate Members permission.
	CanModerate bool
}

type BanEntry struct {
	UserID string
	Reason string
}

// Actions performs moderation actions on the chat platform.
type Actions interface {
	Ban(ctx context.Context, guildID, userID, reason string, purgeDays int) error
	Kick(ctx context.Context, guildID, userID, reason string) error
	Timeout(ctx context.Context, guildID, userID string, until time.Time, reason string) error
	RemoveTimeout(ctx context.Context, guildID, userID, reason string) error
	// FetchBan returns nil and no error when the user is not banned.
	FetchBan(ctx context.Context, guildID, userID string) (*BanEntry, error)
	Unban(ctx context.Context, guildID, userID, reason string) error
}

type Confirmation struct {
	Title       string
	Description string
	Timeout     time.Duration
}

// Prompter asks the actor to confirm an action. It returns false when the
// actor declines or does not answer in time.
type Prompter interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

type Ledger interface {
	CreatePendingCase(ctx context.Context, n storage.NewCase) (storage.Case, error)
	CreateCase(ctx context.Context, n storage.NewCase) (storage.Case, error)
	CommitCase(ctx context.Context, entryID string) error
	CommitCaseAs(ctx context.Context, entryID string, t storage.CaseType) error
	DeleteCase(ctx context.Context, entryID string) error
	GetCase(ctx context.Context, guildEntryID string, number int) (storage.Case, error)
	GetCaseByEntryID(ctx context.Context, guildEntryID, entryID string) (storage.Case, error)
	UpdateCaseReason(ctx context.Context, entryID, reason string) error
	ListCases(ctx context.Context, guildEntryID, target string) ([]storage.Case, error)
}

type Guilds interface {
	GetOrCreate(ctx context.Context, guildID string) (storage.Guild, error)
}

// Auditor is told about ledger changes. Implementations must not fail the
// caller; delivery is best effort.
type Auditor interface {
	CaseCreated(ctx context.Context, guild storage.Guild, c storage.Case)
	CaseEdited(ctx context.Context, guild storage.Guild, c storage.Case, actor string, changes []string)
	CaseDeleted(ctx context.Context, guild storage.Guild, c storage.Case, actor string)
}

type Type int

const (
	Warn Type = iota + 1
	Mute
	Unmute
	Kick
	Ban
	Hackban
	Unban
	Softban
)

var typeNames = map[Type]string{
	Warn:    "warn",
	Mute:    "mute",
	Unmute:  "unmute",
	Kick:    "kick",
	Ban:     "ban",
	Hackban: "hackban",
	Unban:   "unban",
	Softban: "softban",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// CaseType is the ledger type recorded for the action.
func (t Type) CaseType() storage.CaseType {
	switch t {
	case Warn:
		return storage.CaseWarn
	case Mute:
		return storage.CaseTempMute
	case Unmute:
		return storage.CaseUnmute
	case Kick:
		return storage.CaseKick
	case Ban, Hackban:
		return storage.CaseBan
	case Unban:
		return storage.CaseUnban
	case Softban:
		return storage.CaseSoftBan
	}
	return storage.CaseType(-1)
}

func (t Type) confirms() bool {
	return t != Warn
}

// Action is one moderation request.
type Action struct {
	Type    Type
	GuildID string
	Actor   Member
	// Target is the resolved member. Hackban and unban only need TargetID.
	Target   *Member
	TargetID string
	// TargetName is used in prompts.
	TargetName string
	// Bot is the bot's own member. When set, the target must sit below it.
	Bot       *Member
	Reason    string
	Duration  string
	PurgeDays *int
	Prompt    Prompter
}

func (a Action) targetID() string {
	if a.Target != nil {
		return a.Target.ID
	}
	return a.TargetID
}

func (a Action) targetName() string {
	if a.TargetName != "" {
		return a.TargetName
	}
	return a.targetID()
}

type Result struct {
	Case    storage.Case
	Guild   storage.Guild
	Expires time.Time
}

type Service struct {
	guilds         Guilds
	ledger         Ledger
	actions        Actions
	audit          Auditor
	logger         *zap.Logger
	now            func() time.Time
	confirmTimeout time.Duration
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

func NewService(guilds Guilds, ledger Ledger, actions Actions, auditor Auditor, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		guilds:         guilds,
		ledger:         ledger,
		actions:        actions,
		audit:          auditor,
		logger:         logger,
		now:            time.Now,
		confirmTimeout: confirmTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute validates the action, asks for confirmation, records the case and
// performs the platform action. A failed platform call removes the case
// again before the error is returned.
func (s *Service) Execute(ctx context.Context, a Action) (Result, error) {
	if a.Reason == "" {
		a.Reason = DefaultReason
	}
	if a.targetID() == "" {
		return Result{}, validationError("A target is required.")
	}
	if err := s.checkTarget(a); err != nil {
		return Result{}, err
	}

	var (
		expires time.Time
		muteFor time.Duration
	)
	if a.Type == Mute {
		d, err := utils.ParseDuration(a.Duration)
		if err != nil {
			return Result{}, validationError("Invalid time format. Try passing something like '30 seconds'.")
		}
		if d < MinMute || d > MaxMute {
			return Result{}, validationError("You can't mute a user for more than 28 days or less than 1 minute.")
		}
		muteFor = d
		expires = s.now().Add(d)
	}

	purgeDays, err := a.purgeDays()
	if err != nil {
		return Result{}, err
	}

	switch a.Type {
	case Ban, Hackban:
		ban, err := s.actions.FetchBan(ctx, a.GuildID, a.targetID())
		if err != nil {
			return Result{}, classify("ban", err)
		}
		if ban != nil {
			return Result{}, validationError("User is already banned.")
		}
	case Unban:
		ban, err := s.actions.FetchBan(ctx, a.GuildID, a.targetID())
		if err != nil {
			return Result{}, classify("unban", err)
		}
		if ban == nil {
			return Result{}, validationError("User is not banned.")
		}
	}

	if a.Type.confirms() && a.Prompt != nil {
		ok, err := a.Prompt.Confirm(ctx, s.confirmation(a, expires))
		if err != nil {
			return Result{}, errors.Wrap(err, "confirmation prompt")
		}
		if !ok {
			return Result{}, ErrDeclined
		}
	}

	guild, err := s.guilds.GetOrCreate(ctx, a.GuildID)
	if err != nil {
		return Result{}, &Error{Kind: KindUnexpected, Message: "failed to load guild configuration", Err: err}
	}

	n := storage.NewCase{
		GuildEntryID: guild.EntryID,
		Moderator:    a.Actor.ID,
		Target:       a.targetID(),
		Reason:       a.Reason,
		Type:         a.Type.CaseType(),
	}
	if a.Type == Mute {
		n.ExpireAt = &expires
	}

	if a.Type == Warn {
		c, err := s.ledger.CreateCase(ctx, n)
		if err != nil {
			return Result{}, s.ledgerError(err)
		}
		s.created(ctx, guild, c)
		return Result{Case: c, Guild: guild}, nil
	}

	c, err := s.ledger.CreatePendingCase(ctx, n)
	if err != nil {
		return Result{}, s.ledgerError(err)
	}

	if err := s.perform(ctx, a, c, purgeDays, muteFor); err != nil {
		var half *unbanFailed
		if errors.As(err, &half) {
			return s.keepAsBan(ctx, guild, c, half.err)
		}
		modErr := classify(a.Type.String(), err)
		s.rollback(ctx, c, modErr.Kind)
		return Result{}, modErr
	}

	if err := s.ledger.CommitCase(ctx, c.EntryID); err != nil {
		// The platform action already happened; the row stays pending and is
		// reported at startup.
		s.logger.Error("commit case failed", zap.String("guild_id", a.GuildID), zap.Int("case", c.ID), zap.Error(err))
		return Result{}, &Error{Kind: KindUnexpected, Message: "failed to commit case", Err: err}
	}
	c.Status = storage.CaseStatusCommitted
	s.created(ctx, guild, c)
	return Result{Case: c, Guild: guild, Expires: expires}, nil
}

// AuditReason is the reason attached to the platform's own audit log.
func AuditReason(c storage.Case) string {
	return fmt.Sprintf("Case#%s| %s", c.EntryID, c.Reason)
}

func (s *Service) perform(ctx context.Context, a Action, c storage.Case, purgeDays int, muteFor time.Duration) error {
	reason := AuditReason(c)
	target := a.targetID()
	switch a.Type {
	case Mute:
		// Recomputed from now so time spent in the prompt is not lost.
		return s.actions.Timeout(ctx, a.GuildID, target, s.now().Add(muteFor), reason)
	case Unmute:
		return s.actions.RemoveTimeout(ctx, a.GuildID, target, reason)
	case Kick:
		return s.actions.Kick(ctx, a.GuildID, target, reason)
	case Ban, Hackban:
		return s.actions.Ban(ctx, a.GuildID, target, reason, purgeDays)
	case Unban:
		return s.actions.Unban(ctx, a.GuildID, target, reason)
	case Softban:
		if err := s.actions.Ban(ctx, a.GuildID, target, reason, purgeDays); err != nil {
			return err
		}
		if err := s.actions.Unban(ctx, a.GuildID, target, reason); err != nil {
			return &unbanFailed{err: err}
		}
		return nil
	}
	return errors.Errorf("unsupported action %s", a.Type)
}

// unbanFailed is a softban whose ban went through but whose unban did not.
type unbanFailed struct{ err error }

func (e *unbanFailed) Error() string { return "softban unban: " + e.err.Error() }
func (e *unbanFailed) Unwrap() error { return e.err }

// keepAsBan records a half-done softban as the ban it turned into, so the
// ledger matches the platform.
func (s *Service) keepAsBan(ctx context.Context, guild storage.Guild, c storage.Case, unbanErr error) (Result, error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.ledger.CommitCaseAs(ctx, c.EntryID, storage.CaseBan); err != nil {
		s.logger.Error("commit softban as ban failed", zap.String("case_entry", c.EntryID), zap.Int("case", c.ID), zap.Error(err))
		return Result{}, &Error{Kind: KindUnexpected, Message: "failed to commit case", Err: err}
	}
	c.Type = storage.CaseBan
	c.Status = storage.CaseStatusCommitted
	s.created(ctx, guild, c)

	modErr := classify("unban", unbanErr)
	modErr.Message = fmt.Sprintf("%s. The user is still banned; this was recorded as a ban in case #%d.", modErr.Message, c.ID)
	return Result{Case: c, Guild: guild}, modErr
}

func (s *Service) rollback(ctx context.Context, c storage.Case, kind Kind) {
	metrics.CaseRollbacks.WithLabelValues(kind.String()).Inc()
	// The request context may already be done; the compensating delete must
	// still run.
	ctx = context.WithoutCancel(ctx)
	if err := s.ledger.DeleteCase(ctx, c.EntryID); err != nil {
		s.logger.Error("compensating case delete failed", zap.String("case_entry", c.EntryID), zap.Int("case", c.ID), zap.Error(err))
	}
}

func (s *Service) created(ctx context.Context, guild storage.Guild, c storage.Case) {
	metrics.CasesCreated.WithLabelValues(c.Type.String()).Inc()
	if s.audit != nil {
		s.audit.CaseCreated(ctx, guild, c)
	}
}

func (s *Service) ledgerError(err error) error {
	if errors.Is(err, storage.ErrInvalidReason) {
		return validationError(fmt.Sprintf("The reason must be between 1 and %d characters.", storage.MaxReasonLength))
	}
	return &Error{Kind: KindUnexpected, Message: "failed to record case", Err: err}
}

func (s *Service) checkTarget(a Action) error {
	if a.Target == nil {
		if a.Type == Warn || a.Type == Mute || a.Type == Unmute || a.Type == Kick || a.Type == Softban {
			return validationError("That user is not a member of this server.")
		}
		if a.targetID() == a.Actor.ID && a.Type != Unban {
			return validationError("You can't " + a.Type.String() + " yourself.")
		}
		return nil
	}
	if a.Target.ID == a.Actor.ID && a.Type != Unmute {
		return validationError("You can't " + a.Type.String() + " yourself.")
	}
	// Warnings and unmutes only need an equal role.
	strict := a.Type != Unmute && a.Type != Warn
	if !Outranks(a.Actor, *a.Target, strict) {
		if !strict {
			return permissionError(fmt.Sprintf("You must have a higher role than or equal to <@%s> to %s them.", a.Target.ID, a.Type))
		}
		return permissionError(fmt.Sprintf("You must have a higher role than <@%s> to %s them.", a.Target.ID, a.Type))
	}
	if a.Bot != nil && !Outranks(*a.Bot, *a.Target, true) {
		return permissionError(fmt.Sprintf("My highest role is not above <@%s>'s, so I can't %s them.", a.Target.ID, a.Type))
	}
	return nil
}

func (a Action) purgeDays() (int, error) {
	switch a.Type {
	case Softban:
		if a.PurgeDays == nil {
			return softbanPurge, nil
		}
	case Ban, Hackban:
		if a.PurgeDays == nil {
			return defaultPurge, nil
		}
	default:
		return 0, nil
	}
	if *a.PurgeDays < 0 || *a.PurgeDays > maxPurgeDays {
		return 0, validationError("Message deletion must be between 0 and 7 days.")
	}
	return *a.PurgeDays, nil
}

func (s *Service) confirmation(a Action, expires time.Time) Confirmation {
	c := Confirmation{
		Title:   fmt.Sprintf("Are you sure you want to %s %s?", a.Type, a.targetName()),
		Timeout: s.confirmTimeout,
	}
	if a.Type == Mute {
		c.Title = fmt.Sprintf("Are you sure you want to mute %s until <t:%d>?", a.targetName(), expires.Unix())
	}
	if a.Reason != DefaultReason {
		c.Description = "Reason: " + a.Reason
	}
	return c
}

// Outranks reports whether subject's top role is above target's. The guild
// owner outranks everyone. With strict unset an equal role is enough.
func Outranks(subject, target Member, strict bool) bool {
	if subject.IsOwner {
		return true
	}
	if target.IsOwner {
		return false
	}
	if strict {
		return subject.TopRole > target.TopRole
	}
	return subject.TopRole >= target.TopRole
}
