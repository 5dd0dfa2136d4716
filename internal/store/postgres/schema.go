package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type migration struct {
	version string
	name    string
	up      string
}

var migrations = []migration{
	{
		version: "20260901000001",
		name:    "create_catalog",
		up: `
CREATE TABLE IF NOT EXISTS brands (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_brands_name ON brands (lower(name));

CREATE TABLE IF NOT EXISTS models (
    id         TEXT PRIMARY KEY,
    brand_id   TEXT NOT NULL REFERENCES brands (id),
    name       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_models_brand_name ON models (brand_id, lower(name));
`,
	},
	{
		version: "20260901000002",
		name:    "create_counterparties",
		up: `
CREATE TABLE IF NOT EXISTS counterparties (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    contact        TEXT NOT NULL,
    role           TEXT NOT NULL,
    address        TEXT NOT NULL DEFAULT '',
    payable_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    pending_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
    paid_amount    JSONB NOT NULL DEFAULT '[]',
    advance_amount NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (advance_amount >= 0),
    version        BIGINT NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_counterparties_contact_role ON counterparties (contact, role);
CREATE INDEX IF NOT EXISTS idx_counterparties_role ON counterparties (role, name);
`,
	},
	{
		version: "20260901000003",
		name:    "create_products",
		up: `
CREATE TABLE IF NOT EXISTS products (
    id                               TEXT PRIMARY KEY,
    model_id                         TEXT NOT NULL DEFAULT '',
    model_name                       TEXT NOT NULL DEFAULT '',
    brand_name                       TEXT NOT NULL DEFAULT '',
    serial                           TEXT NOT NULL,
    sales_price                      NUMERIC(14,2) NOT NULL DEFAULT 0,
    purchase_price                   NUMERIC(14,2) NOT NULL DEFAULT 0,
    gst_purchase_price               NUMERIC(14,2) NOT NULL DEFAULT 0,
    sold_at_price                    NUMERIC(14,2) NOT NULL DEFAULT 0,
    grade                            TEXT NOT NULL DEFAULT '',
    engineer_name                    TEXT NOT NULL DEFAULT '',
    accessories                      TEXT NOT NULL DEFAULT '',
    supplier_id                      TEXT NOT NULL DEFAULT '',
    status                           TEXT NOT NULL,
    qc_remark                        TEXT NOT NULL DEFAULT '',
    billing_id                       TEXT NOT NULL DEFAULT '',
    is_repaired                      BOOLEAN NOT NULL DEFAULT false,
    issue                            TEXT NOT NULL DEFAULT '',
    repair_parts                     JSONB NOT NULL DEFAULT '[]',
    repairer_cost                    NUMERIC(14,2) NOT NULL DEFAULT 0,
    repair_remark                    TEXT NOT NULL DEFAULT '',
    repair_by                        TEXT NOT NULL DEFAULT '',
    repair_started_at                TIMESTAMPTZ,
    repair_completed_at              TIMESTAMPTZ,
    purchase_cost_including_expenses NUMERIC(14,2) NOT NULL DEFAULT 0,
    created_by                       TEXT NOT NULL DEFAULT '',
    created_at                       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_products_serial ON products (serial, status);
CREATE INDEX IF NOT EXISTS idx_products_status ON products (status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_products_supplier ON products (supplier_id);
`,
	},
	{
		version: "20260901000004",
		name:    "create_billings",
		up: `
CREATE SEQUENCE IF NOT EXISTS billing_invoice_seq;

CREATE TABLE IF NOT EXISTS billings (
    id               TEXT PRIMARY KEY,
    invoice_number   BIGINT NOT NULL UNIQUE,
    customer_id      TEXT NOT NULL DEFAULT '',
    customer_name    TEXT NOT NULL DEFAULT '',
    customer_contact TEXT NOT NULL DEFAULT '',
    items            JSONB NOT NULL DEFAULT '[]',
    payable_amount   NUMERIC(14,2) NOT NULL DEFAULT 0,
    paid_amount      JSONB NOT NULL DEFAULT '[]',
    pending_amount   NUMERIC(14,2) NOT NULL DEFAULT 0 CHECK (pending_amount >= 0),
    net_total        NUMERIC(14,2) NOT NULL DEFAULT 0,
    c_gst            NUMERIC(14,2) NOT NULL DEFAULT 0,
    s_gst            NUMERIC(14,2) NOT NULL DEFAULT 0,
    profit_to_show   NUMERIC(14,2) NOT NULL DEFAULT 0,
    actual_profit    NUMERIC(14,2) NOT NULL DEFAULT 0,
    status           TEXT NOT NULL,
    version          BIGINT NOT NULL DEFAULT 1,
    created_by       TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_billings_status_created ON billings (status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_billings_customer ON billings (customer_id);
`,
	},
	{
		version: "20260901000005",
		name:    "create_audit_and_users",
		up: `
CREATE TABLE IF NOT EXISTS audit_logs (
    id             TEXT PRIMARY KEY,
    actor_username TEXT NOT NULL,
    actor_role     TEXT NOT NULL,
    action         TEXT NOT NULL,
    entity_type    TEXT NOT NULL,
    entity_id      TEXT NOT NULL,
    detail         TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_created ON audit_logs (created_at DESC);

CREATE TABLE IF NOT EXISTS app_users (
    username   TEXT PRIMARY KEY,
    password   TEXT NOT NULL,
    role       TEXT NOT NULL,
    active     BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`,
	},
	{
		version: "20261015000001",
		name:    "unscaled_billing_tax",
		// GST is stored exactly; two-place columns rounded it.
		up: `
ALTER TABLE billings
    ALTER COLUMN net_total TYPE NUMERIC,
    ALTER COLUMN c_gst     TYPE NUMERIC,
    ALTER COLUMN s_gst     TYPE NUMERIC;
`,
	},
}

// Migrate applies pending migrations in version order. Each migration runs in
// its own transaction together with its schema_migrations row.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("postgres: create schema_migrations: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.version).Scan(&applied); err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", m.version, err)
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("postgres: migration %s_%s: %w", m.version, m.name, err)
		}
		s.log.Info().Str("version", m.version).Str("name", m.name).Msg("applied migration")
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, applied_at)
		VALUES ($1,$2,$3)
	`, m.version, m.name, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit()
}
