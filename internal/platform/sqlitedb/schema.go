package sqlitedb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema mirrors internal/platform/db/migrations for the embedded driver.
// Statements are executed one at a time; triggers carry inner semicolons.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS institute (
		id          TEXT PRIMARY KEY,
		code        TEXT NOT NULL UNIQUE,
		name        TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS manufacturer (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS medicine (
		id               TEXT PRIMARY KEY,
		code             TEXT NOT NULL UNIQUE,
		name             TEXT NOT NULL,
		threshold_qty    INTEGER NOT NULL CHECK (threshold_qty > 0),
		expiry_date      DATE,
		manufacturer_id  TEXT REFERENCES manufacturer(id),
		created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS institute_medicine (
		institute_id  TEXT NOT NULL REFERENCES institute(id),
		medicine_id   TEXT NOT NULL REFERENCES medicine(id),
		PRIMARY KEY (institute_id, medicine_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_item (
		institute_id   TEXT NOT NULL REFERENCES institute(id),
		medicine_id    TEXT NOT NULL REFERENCES medicine(id),
		tier           TEXT NOT NULL CHECK (tier IN ('MAIN', 'SUB')),
		medicine_name  TEXT NOT NULL,
		medicine_code  TEXT NOT NULL DEFAULT '',
		quantity       INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
		threshold_qty  INTEGER NOT NULL CHECK (threshold_qty > 0),
		expiry_date    DATE,
		version        INTEGER NOT NULL DEFAULT 0,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (institute_id, medicine_id, tier)
	)`,
	`CREATE TABLE IF NOT EXISTS ledger_entry (
		seq                INTEGER PRIMARY KEY AUTOINCREMENT,
		id                 TEXT NOT NULL UNIQUE,
		institute_id       TEXT NOT NULL REFERENCES institute(id),
		tx_type            TEXT NOT NULL CHECK (tx_type IN ('ORDER_DELIVERY', 'PRESCRIPTION_ISSUE', 'STOCK_TRANSFER')),
		reference_id       TEXT NOT NULL,
		medicine_id        TEXT NOT NULL REFERENCES medicine(id),
		medicine_name      TEXT NOT NULL,
		manufacturer_name  TEXT NOT NULL DEFAULT '',
		tier               TEXT NOT NULL CHECK (tier IN ('MAIN', 'SUB')),
		expiry_date        DATE,
		direction          TEXT NOT NULL CHECK (direction IN ('IN', 'OUT')),
		quantity           INTEGER NOT NULL CHECK (quantity > 0),
		balance_after      INTEGER NOT NULL CHECK (balance_after >= 0),
		recorded_at        DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entry_institute_recorded
		ON ledger_entry (institute_id, recorded_at DESC, seq DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_ledger_entry_reference ON ledger_entry (reference_id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_ledger_entry_order_delivery
		ON ledger_entry (reference_id) WHERE tx_type = 'ORDER_DELIVERY'`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entry_no_update BEFORE UPDATE ON ledger_entry
	BEGIN
		SELECT RAISE(ABORT, 'ledger_entry is append-only');
	END`,
	`CREATE TRIGGER IF NOT EXISTS trg_ledger_entry_no_delete BEFORE DELETE ON ledger_entry
	BEGIN
		SELECT RAISE(ABORT, 'ledger_entry is append-only');
	END`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                   TEXT PRIMARY KEY,
		manufacturer_id      TEXT NOT NULL REFERENCES manufacturer(id),
		institute_id         TEXT NOT NULL REFERENCES institute(id),
		medicine_id          TEXT NOT NULL REFERENCES medicine(id),
		quantity             INTEGER NOT NULL CHECK (quantity > 0),
		manufacturer_status  TEXT NOT NULL DEFAULT 'PENDING',
		institute_status     TEXT NOT NULL DEFAULT 'PENDING',
		tier                 TEXT NOT NULL DEFAULT 'SUB',
		delivery_date        DATE,
		created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS prescription (
		id            TEXT PRIMARY KEY,
		institute_id  TEXT NOT NULL REFERENCES institute(id),
		patient_kind  TEXT NOT NULL CHECK (patient_kind IN ('EMPLOYEE', 'FAMILY_MEMBER')),
		patient_id    TEXT NOT NULL,
		notes         TEXT NOT NULL DEFAULT '',
		issued_by     TEXT NOT NULL DEFAULT '',
		issued_at     DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_prescription_institute ON prescription (institute_id, issued_at DESC)`,
	`CREATE TABLE IF NOT EXISTS prescription_line (
		prescription_id  TEXT NOT NULL REFERENCES prescription(id),
		line_no          INTEGER NOT NULL,
		medicine_id      TEXT NOT NULL REFERENCES medicine(id),
		quantity         INTEGER NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (prescription_id, line_no)
	)`,
}

// Migrate creates every table, index and trigger that does not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
