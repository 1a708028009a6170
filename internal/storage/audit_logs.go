package storage

import (
	"context"
	"time"

	"emperror.dev/errors"
)

type AuditLog struct {
	ID        int64     `db:"id"`
	GuildID   string    `db:"guild_id"`
	UserID    string    `db:"user_id"`
	Level     string    `db:"level"`
	Event     string    `db:"event"`
	Details   string    `db:"details"`
	CreatedAt time.Time `db:"-"`
}

type auditLogRow struct {
	AuditLog
	Created int64 `db:"created_at"`
}

func (s *Store) AddAuditLog(ctx context.Context, log AuditLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (guild_id, user_id, level, event, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, log.GuildID, log.UserID, log.Level, log.Event, log.Details, log.CreatedAt.Unix())
	return errors.Wrap(err, "insert audit log")
}

// ListAuditLogs returns a guild's entries since the given time, newest first.
// An empty guildID lists every guild.
func (s *Store) ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]AuditLog, error) {
	query := `SELECT id, guild_id, user_id, level, event, details, created_at FROM audit_logs WHERE created_at >= ?`
	args := []any{since.Unix()}
	if guildID != "" {
		query += ` AND guild_id = ?`
		args = append(args, guildID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	var rows []auditLogRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "list audit logs")
	}
	logs := make([]AuditLog, 0, len(rows))
	for _, row := range rows {
		log := row.AuditLog
		log.CreatedAt = time.Unix(row.Created, 0)
		logs = append(logs, log)
	}
	return logs, nil
}

func (s *Store) CleanupAuditLogs(ctx context.Context, retentionDays int) error {
	cutoff := s.now().AddDate(0, 0, -retentionDays)
	_, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, cutoff.Unix())
	return errors.Wrap(err, "cleanup audit logs")
}
