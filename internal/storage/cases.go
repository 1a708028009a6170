package storage

import (
	"context"
	"database/sql"
	"strings"
	"time"
	"unicode/utf8"

	"emperror.dev/errors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const MaxReasonLength = 4000

var (
	ErrInvalidExpiry = errors.New("expire_at must be set for temporary case types only")
	ErrInvalidReason = errors.New("reason must be between 1 and 4000 characters")
)

type CaseType int

const (
	CaseWarn CaseType = iota
	CaseMute
	CaseTempMute
	CaseKick
	CaseBan
	CaseTempBan
	CaseUnmute
	CaseUnban
	CaseSoftBan
)

var caseTypeNames = [...]string{
	CaseWarn:     "warn",
	CaseMute:     "mute",
	CaseTempMute: "temp-mute",
	CaseKick:     "kick",
	CaseBan:      "ban",
	CaseTempBan:  "temp-ban",
	CaseUnmute:   "un-mute",
	CaseUnban:    "un-ban",
	CaseSoftBan:  "soft-ban",
}

func (t CaseType) String() string {
	if t < 0 || int(t) >= len(caseTypeNames) {
		return "unknown"
	}
	return caseTypeNames[t]
}

// Title is the display form, e.g. "Temp-Mute".
func (t CaseType) Title() string {
	parts := strings.Split(t.String(), "-")
	for i, part := range parts {
		if part != "" {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "-")
}

// Temporary reports whether cases of this type carry an expiry.
func (t CaseType) Temporary() bool {
	return t == CaseTempMute || t == CaseTempBan
}

type CaseStatus string

const (
	CaseStatusPending   CaseStatus = "pending"
	CaseStatusCommitted CaseStatus = "committed"
)

type Case struct {
	EntryID      string        `db:"entry_id"`
	ID           int           `db:"id"`
	GuildEntryID string        `db:"guild_entry_id"`
	Moderator    string        `db:"moderator"`
	Target       string        `db:"target"`
	Reason       string        `db:"reason"`
	Type         CaseType      `db:"type"`
	Status       CaseStatus    `db:"status"`
	CreatedAt    int64         `db:"created_at"`
	ExpireAt     sql.NullInt64 `db:"expire_at"`
}

func (c Case) Created() time.Time {
	return time.Unix(c.CreatedAt, 0).UTC()
}

func (c Case) Expires() (time.Time, bool) {
	if !c.ExpireAt.Valid {
		return time.Time{}, false
	}
	return time.Unix(c.ExpireAt.Int64, 0).UTC(), true
}

type NewCase struct {
	GuildEntryID string
	Moderator    string
	Target       string
	Reason       string
	Type         CaseType
	ExpireAt     *time.Time
}

func (n NewCase) validate() error {
	if n.Type.Temporary() != (n.ExpireAt != nil) {
		return ErrInvalidExpiry
	}
	return validateReason(n.Reason)
}

func validateReason(reason string) error {
	if count := utf8.RuneCountInString(reason); count < 1 || count > MaxReasonLength {
		return ErrInvalidReason
	}
	return nil
}

const caseColumns = `entry_id, id, guild_entry_id, moderator, target, reason, type, status, created_at, expire_at`

// NextCaseNumber returns 1 when the guild has no cases, otherwise the highest
// existing case number plus one. It only reads; CreatePendingCase allocates
// atomically.
func (s *Store) NextCaseNumber(ctx context.Context, guildEntryID string) (int, error) {
	var next int
	err := s.db.GetContext(ctx, &next, `SELECT COALESCE(MAX(id), 0) + 1 FROM cases WHERE guild_entry_id = ?`, guildEntryID)
	return next, errors.Wrap(err, "next case number")
}

// allocateCaseNumber bumps the guild's counter in a single statement. The
// counter is re-seeded from the existing cases when it lags behind them.
func allocateCaseNumber(ctx context.Context, tx *sqlx.Tx, guildEntryID string) (int, error) {
	var number int
	err := tx.GetContext(ctx, &number, `
		UPDATE guilds
		SET next_case = MAX(next_case, (SELECT COALESCE(MAX(id), 0) + 1 FROM cases WHERE guild_entry_id = guilds.entry_id)) + 1
		WHERE entry_id = ?
		RETURNING next_case - 1
	`, guildEntryID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, errors.Wrap(err, "allocate case number")
	}
	return number, nil
}

// CreatePendingCase allocates the next case number and records the case in
// the pending state. The caller commits it with CommitCase once the
// moderation action went through, or removes it with DeleteCase.
func (s *Store) CreatePendingCase(ctx context.Context, n NewCase) (Case, error) {
	return s.insertCase(ctx, n, CaseStatusPending)
}

// CreateCase records a case that needs no external confirmation.
func (s *Store) CreateCase(ctx context.Context, n NewCase) (Case, error) {
	return s.insertCase(ctx, n, CaseStatusCommitted)
}

func (s *Store) insertCase(ctx context.Context, n NewCase, status CaseStatus) (c Case, err error) {
	if err := n.validate(); err != nil {
		return Case{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Case{}, errors.Wrap(err, "begin case insert")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	number, err := allocateCaseNumber(ctx, tx, n.GuildEntryID)
	if err != nil {
		return Case{}, err
	}

	c = Case{
		EntryID:      uuid.NewString(),
		ID:           number,
		GuildEntryID: n.GuildEntryID,
		Moderator:    n.Moderator,
		Target:       n.Target,
		Reason:       n.Reason,
		Type:         n.Type,
		Status:       status,
		CreatedAt:    s.now().Unix(),
	}
	if n.ExpireAt != nil {
		c.ExpireAt = sql.NullInt64{Int64: n.ExpireAt.Unix(), Valid: true}
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO cases (`+caseColumns+`)
		VALUES (:entry_id, :id, :guild_entry_id, :moderator, :target, :reason, :type, :status, :created_at, :expire_at)
	`, c)
	if err != nil {
		err = errors.Wrap(err, "insert case")
		return Case{}, err
	}
	if err = tx.Commit(); err != nil {
		err = errors.Wrap(err, "commit case insert")
		return Case{}, err
	}
	return c, nil
}

func (s *Store) CommitCase(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET status = ? WHERE entry_id = ?`, CaseStatusCommitted, entryID)
	if err != nil {
		return errors.Wrap(err, "commit case")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CommitCaseAs commits a pending case under a different type, for actions
// that only partly succeeded. Temporary types are rejected because expire_at
// is left as is.
func (s *Store) CommitCaseAs(ctx context.Context, entryID string, t CaseType) error {
	if t.Temporary() {
		return ErrInvalidExpiry
	}
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET status = ?, type = ? WHERE entry_id = ? AND expire_at IS NULL`, CaseStatusCommitted, t, entryID)
	if err != nil {
		return errors.Wrap(err, "commit case")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteCase removes a case. When it held the most recently allocated number
// the guild counter is rewound so sequential numbering stays gap free.
func (s *Store) DeleteCase(ctx context.Context, entryID string) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin case delete")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var c Case
	if err = tx.GetContext(ctx, &c, `SELECT `+caseColumns+` FROM cases WHERE entry_id = ?`, entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrNotFound
			return err
		}
		err = errors.Wrap(err, "load case")
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM cases WHERE entry_id = ?`, entryID); err != nil {
		err = errors.Wrap(err, "delete case")
		return err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE guilds SET next_case = next_case - 1 WHERE entry_id = ? AND next_case = ?`, c.GuildEntryID, c.ID+1); err != nil {
		err = errors.Wrap(err, "rewind case counter")
		return err
	}
	return errors.Wrap(tx.Commit(), "commit case delete")
}

// GetCase looks a committed case up by its per-guild number.
func (s *Store) GetCase(ctx context.Context, guildEntryID string, number int) (Case, error) {
	return s.getCase(ctx, `SELECT `+caseColumns+` FROM cases WHERE guild_entry_id = ? AND id = ? AND status = 'committed'`, guildEntryID, number)
}

// GetCaseByEntryID looks a committed case up by its surrogate id, scoped to the guild.
func (s *Store) GetCaseByEntryID(ctx context.Context, guildEntryID, entryID string) (Case, error) {
	return s.getCase(ctx, `SELECT `+caseColumns+` FROM cases WHERE guild_entry_id = ? AND entry_id = ? AND status = 'committed'`, guildEntryID, entryID)
}

func (s *Store) getCase(ctx context.Context, query string, args ...any) (Case, error) {
	var c Case
	if err := s.db.GetContext(ctx, &c, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Case{}, ErrNotFound
		}
		return Case{}, errors.Wrap(err, "get case")
	}
	return c, nil
}

func (s *Store) UpdateCaseReason(ctx context.Context, entryID, reason string) error {
	if err := validateReason(reason); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET reason = ? WHERE entry_id = ?`, reason, entryID)
	if err != nil {
		return errors.Wrap(err, "update case reason")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCases returns committed cases newest first, optionally only those
// against target.
func (s *Store) ListCases(ctx context.Context, guildEntryID, target string) ([]Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE guild_entry_id = ? AND status = 'committed'`
	args := []any{guildEntryID}
	if target != "" {
		query += ` AND target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY id DESC`

	var cases []Case
	if err := s.db.SelectContext(ctx, &cases, query, args...); err != nil {
		return nil, errors.Wrap(err, "list cases")
	}
	return cases, nil
}

// CountCasesByType counts committed cases across all guilds.
func (s *Store) CountCasesByType(ctx context.Context) (map[CaseType]int, error) {
	var rows []struct {
		Type  CaseType `db:"type"`
		Count int      `db:"count"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT type, COUNT(*) AS count FROM cases WHERE status = 'committed' GROUP BY type`); err != nil {
		return nil, errors.Wrap(err, "count cases")
	}
	counts := make(map[CaseType]int, len(rows))
	for _, row := range rows {
		counts[row.Type] = row.Count
	}
	return counts, nil
}

// ListStalePendingCases returns cases stuck in the pending state since before
// olderThan, which means the process stopped between recording the case and
// finishing the moderation action.
func (s *Store) ListStalePendingCases(ctx context.Context, olderThan time.Time) ([]Case, error) {
	var cases []Case
	err := s.db.SelectContext(ctx, &cases, `SELECT `+caseColumns+` FROM cases WHERE status = 'pending' AND created_at < ? ORDER BY created_at`, olderThan.Unix())
	return cases, errors.Wrap(err, "list pending cases")
}
