package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"spanner/internal/storage"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 25
)

// caseRefPattern matches "12", "#12" and autocomplete values ending in "(#12)".
var caseRefPattern = regexp.MustCompile(`^(?:.*\(#(\d+)\)|#?(\d+))$`)

// Cases serves the case view, edit, delete and list operations.
type Cases struct {
	guilds Guilds
	ledger Ledger
	audit  Auditor
	logger *zap.Logger
}

func NewCases(guilds Guilds, ledger Ledger, auditor Auditor, logger *zap.Logger) *Cases {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cases{guilds: guilds, ledger: ledger, audit: auditor, logger: logger}
}

// ParseCaseRef extracts a case number from user input.
func ParseCaseRef(ref string) (int, bool) {
	m := caseRefPattern.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return 0, false
	}
	digits := m[1]
	if digits == "" {
		digits = m[2]
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// View looks a case up by its number or by its entry id.
func (cs *Cases) View(ctx context.Context, guildID, ref string) (storage.Case, error) {
	guild, err := cs.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		return storage.Case{}, err
	}
	return cs.lookup(ctx, guild, ref)
}

func (cs *Cases) lookup(ctx context.Context, guild storage.Guild, ref string) (storage.Case, error) {
	var (
		c   storage.Case
		err error
	)
	if n, ok := ParseCaseRef(ref); ok {
		c, err = cs.ledger.GetCase(ctx, guild.EntryID, n)
	} else if id, parseErr := uuid.Parse(strings.TrimSpace(ref)); parseErr == nil {
		c, err = cs.ledger.GetCaseByEntryID(ctx, guild.EntryID, id.String())
	} else {
		return storage.Case{}, ErrCaseNotFound
	}
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Case{}, ErrCaseNotFound
	}
	return c, err
}

// EditReason replaces the reason of a case. Only the moderator who opened
// the case or an administrator may do so.
func (cs *Cases) EditReason(ctx context.Context, guildID string, actor Member, ref, reason string) (storage.Case, error) {
	guild, err := cs.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		return storage.Case{}, err
	}
	c, err := cs.lookup(ctx, guild, ref)
	if err != nil {
		return storage.Case{}, err
	}
	if err := authorize(actor, c); err != nil {
		return storage.Case{}, err
	}
	if reason == c.Reason {
		return c, nil
	}

	if err := cs.ledger.UpdateCaseReason(ctx, c.EntryID, reason); err != nil {
		if errors.Is(err, storage.ErrInvalidReason) {
			return storage.Case{}, validationError(fmt.Sprintf("The reason must be between 1 and %d characters.", storage.MaxReasonLength))
		}
		return storage.Case{}, err
	}
	c.Reason = reason
	if cs.audit != nil {
		cs.audit.CaseEdited(ctx, guild, c, actor.ID, []string{"reason"})
	}
	return c, nil
}

// Delete removes a case after the actor confirmed it.
func (cs *Cases) Delete(ctx context.Context, guildID string, actor Member, ref string, prompt Prompter) (storage.Case, error) {
	guild, err := cs.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		return storage.Case{}, err
	}
	c, err := cs.lookup(ctx, guild, ref)
	if err != nil {
		return storage.Case{}, err
	}
	if err := authorize(actor, c); err != nil {
		return storage.Case{}, err
	}

	if prompt != nil {
		ok, err := prompt.Confirm(ctx, Confirmation{
			Title:   fmt.Sprintf("Are you sure you would like to delete case #%d?", c.ID),
			Timeout: confirmTimeout,
		})
		if err != nil {
			return storage.Case{}, errors.Wrap(err, "confirmation prompt")
		}
		if !ok {
			return storage.Case{}, ErrDeclined
		}
	}

	if err := cs.ledger.DeleteCase(ctx, c.EntryID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Case{}, ErrCaseNotFound
		}
		return storage.Case{}, err
	}
	if cs.audit != nil {
		cs.audit.CaseDeleted(ctx, guild, c, actor.ID)
	}
	return c, nil
}

// List returns the guild's cases newest first, split into pages. An empty
// target lists every case.
func (cs *Cases) List(ctx context.Context, guildID string, actor Member, target string, perPage int) ([][]storage.Case, error) {
	if !actor.IsOwner && !actor.IsAdmin && !actor.CanModerate {
		return nil, permissionError("You need the Moderate Members permission to view cases.")
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if perPage < 1 || perPage > MaxPerPage {
		return nil, validationError(fmt.Sprintf("Cases per page must be between 1 and %d.", MaxPerPage))
	}

	guild, err := cs.guilds.GetOrCreate(ctx, guildID)
	if err != nil {
		return nil, err
	}
	cases, err := cs.ledger.ListCases(ctx, guild.EntryID, target)
	if err != nil {
		return nil, err
	}
	return Paginate(cases, perPage), nil
}

// FormatCaseLine renders one list entry.
func FormatCaseLine(c storage.Case) string {
	return fmt.Sprintf("%d: %s | <@%s> | <t:%d>", c.ID, c.Type.Title(), c.Target, c.CreatedAt)
}

func authorize(actor Member, c storage.Case) error {
	if actor.ID == c.Moderator || actor.IsAdmin || actor.IsOwner {
		return nil
	}
	return permissionError("You must be an administrator to manage other people's cases.")
}
