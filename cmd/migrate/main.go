package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mohasbks/advanced-cid-bot/internal/config"
	"github.com/mohasbks/advanced-cid-bot/internal/domain/catalog"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/database"
	"github.com/mohasbks/advanced-cid-bot/internal/pkg/logger"
)

// step is one idempotent schema migration. Steps run in order and every
// statement uses IF NOT EXISTS, so re-running the binary is safe.
type step struct {
	name string
	sql  string
}

var steps = []step{
	{
		name: "create_users",
		sql: `
CREATE TABLE IF NOT EXISTS users (
    telegram_id   BIGINT PRIMARY KEY,
    username      TEXT,
    first_name    TEXT,
    last_name     TEXT,
    balance_cid   BIGINT NOT NULL DEFAULT 0,
    balance_usd   NUMERIC(12,2) NOT NULL DEFAULT 0,
    is_admin      BOOLEAN NOT NULL DEFAULT FALSE,
    is_banned     BOOLEAN NOT NULL DEFAULT FALSE,
    registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		name: "create_transactions",
		sql: `
CREATE TABLE IF NOT EXISTS transactions (
    id              UUID PRIMARY KEY,
    user_id         BIGINT NOT NULL REFERENCES users(telegram_id),
    type            TEXT NOT NULL,
    amount_cid      BIGINT NOT NULL DEFAULT 0,
    amount_usd      NUMERIC(12,2) NOT NULL DEFAULT 0,
    status          TEXT NOT NULL DEFAULT 'pending',
    reference_id    TEXT,
    from_address    TEXT,
    to_address      TEXT,
    installation_id TEXT,
    confirmation_id TEXT,
    description     TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_transactions_reference
    ON transactions (reference_id) WHERE reference_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_transactions_user
    ON transactions (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions (type);
CREATE INDEX IF NOT EXISTS idx_transactions_status ON transactions (status);
`,
	},
	{
		name: "create_vouchers",
		sql: `
CREATE TABLE IF NOT EXISTS vouchers (
    id         BIGSERIAL PRIMARY KEY,
    code       TEXT NOT NULL UNIQUE,
    cid_amount BIGINT NOT NULL DEFAULT 0,
    usd_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
    is_used    BOOLEAN NOT NULL DEFAULT FALSE,
    created_by BIGINT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_vouchers_unused ON vouchers (is_used) WHERE NOT is_used;

CREATE TABLE IF NOT EXISTS voucher_uses (
    id         BIGSERIAL PRIMARY KEY,
    voucher_id BIGINT NOT NULL REFERENCES vouchers(id),
    user_id    BIGINT NOT NULL REFERENCES users(telegram_id),
    used_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (voucher_id, user_id)
);
`,
	},
	{
		name: "create_packages",
		sql: `
CREATE TABLE IF NOT EXISTS packages (
    id         SERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    cid_amount BIGINT NOT NULL UNIQUE,
    price_usd  NUMERIC(12,2) NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		name: "create_reservations",
		sql: `
CREATE TABLE IF NOT EXISTS reservations (
    id           UUID PRIMARY KEY,
    user_id      BIGINT NOT NULL REFERENCES users(telegram_id),
    package_id   INT NOT NULL REFERENCES packages(id),
    required_usd NUMERIC(12,2) NOT NULL DEFAULT 0,
    status       TEXT NOT NULL DEFAULT 'active',
    payment_txid TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    expires_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_reservations_user_active
    ON reservations (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_reservations_expiry
    ON reservations (status, expires_at);
`,
	},
	{
		name: "create_cid_requests",
		sql: `
CREATE TABLE IF NOT EXISTS cid_requests (
    id              UUID PRIMARY KEY,
    user_id         BIGINT NOT NULL REFERENCES users(telegram_id),
    installation_id TEXT NOT NULL,
    confirmation_id TEXT,
    status          TEXT NOT NULL DEFAULT 'processing',
    cost_cid        BIGINT NOT NULL DEFAULT 1,
    error_message   TEXT,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cid_requests_user
    ON cid_requests (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_cid_requests_status ON cid_requests (status);
`,
	},
	{
		name: "create_admin_logs",
		sql: `
CREATE TABLE IF NOT EXISTS admin_logs (
    id             UUID PRIMARY KEY,
    admin_id       BIGINT NOT NULL,
    action         TEXT NOT NULL,
    target_user_id BIGINT,
    details        TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_admin_logs_created ON admin_logs (created_at DESC);
`,
	},
}

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, s := range steps {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			log.Fatal().Err(err).Str("step", s.name).Msg("Migration step failed")
		}
		log.Info().Str("step", s.name).Msg("Migration step applied")
	}

	if err := catalog.NewRepository(db).Seed(ctx); err != nil {
		log.Fatal().Err(err).Msg("Package catalog seed failed")
	}
	log.Info().Msg("Package catalog seeded")

	log.Info().Int("steps", len(steps)).Msg("Migrations complete")
}
