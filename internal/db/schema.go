package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// constraint names are relied on by repo/postgres to tell username and email clashes apart
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            BIGSERIAL PRIMARY KEY,
	username      TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL,
	roles         TEXT[] NOT NULL DEFAULT ARRAY['ROLE_USER']::TEXT[],
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT users_username_key UNIQUE (username),
	CONSTRAINT users_email_key UNIQUE (email)
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)

	return err
}
