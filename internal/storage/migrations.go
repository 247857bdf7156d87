package storage

import (
	"context"
	"fmt"
)

// Migrate creates the schema if it does not exist yet. The statements are
// idempotent; running them on every start keeps a fresh database usable
// without a separate migration tool.
func (s *storageImpl) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS membership_plans (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			name          TEXT NOT NULL UNIQUE,
			duration_days INTEGER NOT NULL,
			price         REAL NOT NULL,
			currency      TEXT NOT NULL DEFAULT 'LKR',
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TIMESTAMP NOT NULL,
			updated_at    TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS payments (
			id                     INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id         TEXT NOT NULL UNIQUE,
			user_id                INTEGER NOT NULL,
			amount                 REAL NOT NULL,
			currency               TEXT NOT NULL,
			type                   TEXT NOT NULL,
			status                 TEXT NOT NULL,
			method                 TEXT NOT NULL,
			related_type           TEXT NOT NULL,
			related_id             INTEGER,
			gateway_transaction_id TEXT,
			gateway_response       TEXT,
			failure_reason         TEXT,
			refunded_amount        REAL NOT NULL DEFAULT 0,
			membership_pending     INTEGER NOT NULL DEFAULT 0,
			processed_at           TIMESTAMP,
			created_at             TIMESTAMP NOT NULL,
			updated_at             TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_status ON payments (status)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments (user_id)`,
		`CREATE TABLE IF NOT EXISTS recurring_schedules (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           INTEGER NOT NULL,
			amount            REAL NOT NULL,
			currency          TEXT NOT NULL,
			frequency         TEXT NOT NULL,
			next_payment_date TIMESTAMP NOT NULL,
			payment_token     TEXT,
			status            TEXT NOT NULL,
			failure_count     INTEGER NOT NULL DEFAULT 0,
			max_failures      INTEGER NOT NULL,
			last_payment_date TIMESTAMP,
			last_payment_id   TEXT,
			related_type      TEXT NOT NULL,
			related_id        INTEGER,
			created_at        TIMESTAMP NOT NULL,
			updated_at        TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON recurring_schedules (status, next_payment_date)`,
		`CREATE TABLE IF NOT EXISTS memberships (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id        INTEGER NOT NULL,
			plan_id        INTEGER NOT NULL REFERENCES membership_plans (id),
			transaction_id TEXT NOT NULL UNIQUE,
			start_date     TIMESTAMP NOT NULL,
			end_date       TIMESTAMP NOT NULL,
			status         TEXT NOT NULL,
			auto_renew     INTEGER NOT NULL DEFAULT 0,
			notes          TEXT,
			created_at     TIMESTAMP NOT NULL,
			updated_at     TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_memberships_user ON memberships (user_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}

	return nil
}
