package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"

	"emperror.dev/errors"
)

type APIToken struct {
	ID        int64  `db:"id"`
	Secret    string `db:"secret"`
	CreatedAt int64  `db:"created_at"`
}

// CreateAPIToken issues a new random admin API secret.
func (s *Store) CreateAPIToken(ctx context.Context) (APIToken, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return APIToken{}, errors.Wrap(err, "generate token")
	}
	token := APIToken{ID: s.nextID(), Secret: hex.EncodeToString(buf), CreatedAt: s.now().Unix()}
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO api_tokens (id, secret, created_at) VALUES (:id, :secret, :created_at)`, token)
	if err != nil {
		return APIToken{}, errors.Wrap(err, "insert token")
	}
	return token, nil
}

func (s *Store) ListAPITokenSecrets(ctx context.Context) ([]string, error) {
	var secrets []string
	err := s.db.SelectContext(ctx, &secrets, `SELECT secret FROM api_tokens`)
	return secrets, errors.Wrap(err, "list tokens")
}

func (s *Store) DeleteAPIToken(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "delete token")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
