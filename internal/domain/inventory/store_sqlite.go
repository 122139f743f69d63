package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/sqlitedb"
)

type storeSQLite struct{ db *sqlx.DB }

func NewStoreSQLite(db *sqlx.DB) Store {
	return &storeSQLite{db: db}
}

func (s *storeSQLite) GetQuantity(ctx context.Context, key Key) (int64, error) {
	return quantitySQLite(ctx, sqlitedb.Conn(ctx, s.db), key)
}

func quantitySQLite(ctx context.Context, q sqlitedb.Ext, key Key) (int64, error) {
	var qty int64
	err := sqlx.GetContext(ctx, q, &qty, `
		SELECT quantity FROM inventory_item
		WHERE institute_id = ? AND medicine_id = ? AND tier = ?`,
		key.InstituteID, key.MedicineID, key.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *storeSQLite) Get(ctx context.Context, key Key) (*Item, error) {
	var item Item
	err := sqlx.GetContext(ctx, sqlitedb.Conn(ctx, s.db), &item, `
		SELECT `+itemCols+` FROM inventory_item
		WHERE institute_id = ? AND medicine_id = ? AND tier = ?`,
		key.InstituteID, key.MedicineID, key.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("inventory item %s: %w", key, apperror.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *storeSQLite) Adjust(ctx context.Context, key Key, delta int64, seed *Seed) (int64, error) {
	if err := checkAdjust(key, delta); err != nil {
		return 0, err
	}
	q := sqlitedb.Conn(ctx, s.db)
	now := time.Now().UTC()

	if delta > 0 && seed != nil {
		if err := seed.validate(); err != nil {
			return 0, err
		}
		_, err := q.ExecContext(ctx, `
			INSERT INTO inventory_item (institute_id, medicine_id, tier, medicine_name, medicine_code,
				quantity, threshold_qty, expiry_date, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
			ON CONFLICT (institute_id, medicine_id, tier) DO NOTHING`,
			key.InstituteID, key.MedicineID, key.Tier, seed.MedicineName, seed.MedicineCode,
			seed.ThresholdQty, seed.ExpiryDate, now, now)
		if err != nil {
			return 0, sqlitedb.MapError(fmt.Errorf("create inventory item %s: %w", key, err))
		}
	}

	var balance int64
	err := q.QueryRowxContext(ctx, `
		UPDATE inventory_item
		SET quantity = quantity + ?, version = version + 1, updated_at = ?
		WHERE institute_id = ? AND medicine_id = ? AND tier = ? AND quantity + ? >= 0
		RETURNING quantity`,
		delta, now, key.InstituteID, key.MedicineID, key.Tier, delta).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		available, qerr := quantitySQLite(ctx, q, key)
		if qerr != nil {
			return 0, qerr
		}
		return 0, rejection(key, delta, available, seed)
	}
	if err != nil {
		return 0, sqlitedb.MapError(fmt.Errorf("adjust %s: %w", key, err))
	}
	return balance, nil
}

func (s *storeSQLite) ListByInstitute(ctx context.Context, instituteID uuid.UUID) ([]*Item, error) {
	var items []*Item
	err := sqlx.SelectContext(ctx, sqlitedb.Conn(ctx, s.db), &items, `
		SELECT `+itemCols+` FROM inventory_item
		WHERE institute_id = ?
		ORDER BY tier, medicine_name, medicine_id`, instituteID)
	return items, err
}
