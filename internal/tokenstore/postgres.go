package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"token-service/internal/db"
)

// PostgresStore is the durable Store implementation. A single
// INSERT ... ON CONFLICT statement makes Upsert atomic per row.
type PostgresStore struct {
	db *db.DB
}

func NewPostgresStore(db *db.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Record, error) {

	var rec Record
	rec.UserID = userID

	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, account, expires_at, updated_at
		FROM user_tokens
		WHERE user_id = $1
	`, userID).Scan(
		&rec.EncryptedAccessToken,
		&rec.EncryptedRefreshToken,
		&rec.Account,
		&rec.ExpiresAt,
		&rec.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// A row without a refresh token cannot mint new access tokens and is
	// indistinguishable from "never connected" for callers.
	if len(rec.EncryptedRefreshToken) == 0 {
		return nil, ErrNotFound
	}

	return &rec, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec Record) error {
	if rec.UserID == "" {
		return errors.New("tokenstore: missing user_id")
	}
	if len(rec.EncryptedRefreshToken) == 0 {
		return errors.New("tokenstore: refusing to store record without refresh token")
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_tokens (user_id, access_token, refresh_token, account, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			account = EXCLUDED.account,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`,
		rec.UserID,
		rec.EncryptedAccessToken,
		rec.EncryptedRefreshToken,
		rec.Account,
		rec.ExpiresAt,
		rec.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_tokens
		WHERE user_id = $1
	`, userID)

	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}
