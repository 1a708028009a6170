package storage

import (
	"context"
	"database/sql"
	"time"

	"emperror.dev/errors"
)

type CommandType string

const (
	CommandUnknown      CommandType = "unknown"
	CommandText         CommandType = "text"
	CommandSlash        CommandType = "slash"
	CommandUser         CommandType = "user context"
	CommandMessage      CommandType = "message context"
	CommandAutocomplete CommandType = "autocomplete"
	CommandModal        CommandType = "modal context"
)

// ErrorRecord is a diagnostic snapshot of a failed command.
type ErrorRecord struct {
	ID                 int64          `db:"id"`
	Traceback          string         `db:"traceback_text"`
	Author             string         `db:"author"`
	Guild              sql.NullString `db:"guild"`
	Channel            sql.NullString `db:"channel"`
	Command            string         `db:"command"`
	CommandType        CommandType    `db:"command_type"`
	PermissionsChannel int64          `db:"permissions_channel"`
	PermissionsGuild   int64          `db:"permissions_guild"`
	FullMessage        sql.NullString `db:"full_message"`
	CreatedAt          int64          `db:"created_at"`
}

func (r ErrorRecord) Created() time.Time {
	return time.Unix(r.CreatedAt, 0).UTC()
}

const errorColumns = `id, traceback_text, author, guild, channel, command, command_type, permissions_channel, permissions_guild, full_message, created_at`

// CreateErrorRecord stores rec under a new snowflake id and returns it.
func (s *Store) CreateErrorRecord(ctx context.Context, rec ErrorRecord) (ErrorRecord, error) {
	rec.ID = s.nextID()
	rec.CreatedAt = s.now().Unix()
	if rec.CommandType == "" {
		rec.CommandType = CommandUnknown
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO errors (`+errorColumns+`)
		VALUES (:id, :traceback_text, :author, :guild, :channel, :command, :command_type,
			:permissions_channel, :permissions_guild, :full_message, :created_at)
	`, rec)
	if err != nil {
		return ErrorRecord{}, errors.Wrap(err, "insert error record")
	}
	return rec, nil
}

func (s *Store) GetErrorRecord(ctx context.Context, id int64) (ErrorRecord, error) {
	var rec ErrorRecord
	if err := s.db.GetContext(ctx, &rec, `SELECT `+errorColumns+` FROM errors WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrorRecord{}, ErrNotFound
		}
		return ErrorRecord{}, errors.Wrap(err, "get error record")
	}
	return rec, nil
}

func (s *Store) DeleteErrorRecord(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM errors WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete error record")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountErrorRecords(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM errors`)
	return count, errors.Wrap(err, "count error records")
}
