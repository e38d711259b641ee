package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"authgate/internal/storage"
)

func (s *Storage) Get(ctx context.Context, key storage.Key) (string, error) {
	const op = "storage.sqlite.Get"

	row := s.db.QueryRowContext(ctx, "SELECT value FROM credentials WHERE key = ?", string(key))

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrCredentialNotFound
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if value == "" {
		return "", storage.ErrCredentialNotFound
	}

	return value, nil
}

func (s *Storage) Set(ctx context.Context, key storage.Key, value string) error {
	const op = "storage.sqlite.Set"

	_, err := s.db.ExecContext(ctx, `
INSERT INTO credentials (key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(key), value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (s *Storage) Delete(ctx context.Context, keys ...storage.Key) error {
	const op = "storage.sqlite.Delete"

	if len(keys) == 0 {
		return nil
	}

	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = string(k)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	_, err := s.db.ExecContext(ctx, "DELETE FROM credentials WHERE key IN ("+placeholders+")", args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
