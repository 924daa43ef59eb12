package db

import (
	"context"
	"database/sql"
)

const tokenVaultMigration = `
CREATE TABLE IF NOT EXISTS user_tokens (
    user_id text PRIMARY KEY,
    access_token bytea,
    refresh_token bytea NOT NULL,
    account bytea NOT NULL,
    expires_at timestamptz NOT NULL,
    updated_at timestamptz NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS user_tokens_expires_at_idx
ON user_tokens (expires_at);
`

func RunTokenVaultMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, tokenVaultMigration)
	return err
}
