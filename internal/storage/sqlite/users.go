package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"authgate/internal/domain/models"
	"authgate/internal/storage"
)

func (s *Storage) SaveUser(ctx context.Context, username string, passHash []byte) (int64, error) {
	const op = "storage.sqlite.SaveUser"

	stmt, err := s.db.PrepareContext(ctx, "INSERT INTO users (username, pass_hash) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, username, passHash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrUserAlreadyExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return result.LastInsertId()
}

func (s *Storage) User(ctx context.Context, username string) (*models.User, error) {
	const op = "storage.sqlite.User"

	row := s.db.QueryRowContext(ctx, "SELECT id, username, pass_hash FROM users WHERE username = ?", username)

	return scanUser(op, row)
}

func (s *Storage) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	const op = "storage.sqlite.UserByID"

	row := s.db.QueryRowContext(ctx, "SELECT id, username, pass_hash FROM users WHERE id = ?", userID)

	return scanUser(op, row)
}

func scanUser(op string, row *sql.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.PassHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &user, nil
}

// SaveRefreshToken stores a new refresh token hash.
func (s *Storage) SaveRefreshToken(ctx context.Context, tokenHash string, userID int64, expiresAt time.Time) error {
	const op = "storage.sqlite.SaveRefreshToken"

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		tokenHash, userID, time.Now().Unix(), expiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetRefreshToken retrieves a refresh token by its hash.
func (s *Storage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	const op = "storage.sqlite.GetRefreshToken"

	row := s.db.QueryRowContext(ctx, `
SELECT token_hash, user_id, created_at, expires_at, revoked_at, replaced_by_hash
FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	var (
		token      models.RefreshToken
		createdAt  int64
		expiresAt  int64
		revokedAt  sql.NullInt64
		replacedBy sql.NullString
	)
	err := row.Scan(&token.TokenHash, &token.UserID, &createdAt, &expiresAt, &revokedAt, &replacedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token.CreatedAt = time.Unix(createdAt, 0)
	token.ExpiresAt = time.Unix(expiresAt, 0)
	if revokedAt.Valid {
		t := time.Unix(revokedAt.Int64, 0)
		token.RevokedAt = &t
	}
	if replacedBy.Valid {
		token.ReplacedByHash = &replacedBy.String
	}

	return &token, nil
}

// RotateRefreshToken revokes the old token and inserts its replacement in
// one transaction. A token that is already revoked is reported as not found.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash, newHash string, userID int64, newExpiresAt time.Time) error {
	const op = "storage.sqlite.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()

	res, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at = ?, replaced_by_hash = ? WHERE token_hash = ? AND revoked_at IS NULL",
		now, newHash, oldHash,
	)
	if err != nil {
		return fmt.Errorf("%s: revoke old: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: revoke old: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrRefreshTokenNotFound)
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (token_hash, user_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		newHash, userID, now, newExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%s: insert new: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}
