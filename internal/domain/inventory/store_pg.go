package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/db"
)

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

const itemCols = `institute_id, medicine_id, tier, medicine_name, medicine_code,
	quantity, threshold_qty, expiry_date, version, created_at, updated_at`

func scanItem(row pgx.Row) (*Item, error) {
	var i Item
	err := row.Scan(&i.InstituteID, &i.MedicineID, &i.Tier, &i.MedicineName, &i.MedicineCode,
		&i.Quantity, &i.ThresholdQty, &i.ExpiryDate, &i.Version, &i.CreatedAt, &i.UpdatedAt)
	return &i, err
}

func (s *storePG) GetQuantity(ctx context.Context, key Key) (int64, error) {
	return quantityPG(ctx, db.Conn(ctx, s.pool), key)
}

func quantityPG(ctx context.Context, q db.Querier, key Key) (int64, error) {
	var qty int64
	err := q.QueryRow(ctx, `
		SELECT quantity FROM inventory_item
		WHERE institute_id = $1 AND medicine_id = $2 AND tier = $3`,
		key.InstituteID, key.MedicineID, key.Tier).Scan(&qty)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return qty, err
}

func (s *storePG) Get(ctx context.Context, key Key) (*Item, error) {
	item, err := scanItem(db.Conn(ctx, s.pool).QueryRow(ctx, `
		SELECT `+itemCols+` FROM inventory_item
		WHERE institute_id = $1 AND medicine_id = $2 AND tier = $3`,
		key.InstituteID, key.MedicineID, key.Tier))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("inventory item %s: %w", key, apperror.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (s *storePG) Adjust(ctx context.Context, key Key, delta int64, seed *Seed) (int64, error) {
	if err := checkAdjust(key, delta); err != nil {
		return 0, err
	}
	q := db.Conn(ctx, s.pool)
	now := time.Now().UTC()

	if delta > 0 && seed != nil {
		if err := seed.validate(); err != nil {
			return 0, err
		}
		_, err := q.Exec(ctx, `
			INSERT INTO inventory_item (institute_id, medicine_id, tier, medicine_name, medicine_code,
				quantity, threshold_qty, expiry_date, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
			ON CONFLICT (institute_id, medicine_id, tier) DO NOTHING`,
			key.InstituteID, key.MedicineID, key.Tier, seed.MedicineName, seed.MedicineCode,
			seed.ThresholdQty, seed.ExpiryDate, now)
		if err != nil {
			return 0, db.MapError(fmt.Errorf("create inventory item %s: %w", key, err))
		}
	}

	var balance int64
	err := q.QueryRow(ctx, `
		UPDATE inventory_item
		SET quantity = quantity + $4, version = version + 1, updated_at = $5
		WHERE institute_id = $1 AND medicine_id = $2 AND tier = $3 AND quantity + $4 >= 0
		RETURNING quantity`,
		key.InstituteID, key.MedicineID, key.Tier, delta, now).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		available, qerr := quantityPG(ctx, q, key)
		if qerr != nil {
			return 0, qerr
		}
		return 0, rejection(key, delta, available, seed)
	}
	if err != nil {
		return 0, db.MapError(fmt.Errorf("adjust %s: %w", key, err))
	}
	return balance, nil
}

func (s *storePG) ListByInstitute(ctx context.Context, instituteID uuid.UUID) ([]*Item, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT `+itemCols+` FROM inventory_item
		WHERE institute_id = $1
		ORDER BY tier, medicine_name, medicine_id`, instituteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func checkAdjust(key Key, delta int64) error {
	if delta == 0 {
		return fmt.Errorf("adjust %s by zero: %w", key, apperror.ErrInvalidInput)
	}
	if !key.Tier.Valid() {
		return fmt.Errorf("unknown store tier %q: %w", key.Tier, apperror.ErrInvalidInput)
	}
	return nil
}

// rejection explains why a conditional update matched no row.
func rejection(key Key, delta, available int64, seed *Seed) error {
	if delta > 0 {
		return seed.validate()
	}
	return &InsufficientStockError{Key: key, Requested: -delta, Available: available}
}
