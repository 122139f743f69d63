package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medledger/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const medicineCols = `id, code, name, threshold_qty, expiry_date, manufacturer_id, created_at`

func scanMedicine(row pgx.Row) (*Medicine, error) {
	var m Medicine
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.ThresholdQty, &m.ExpiryDate, &m.ManufacturerID, &m.CreatedAt)
	return &m, err
}

func (r *repoPG) GetInstitute(ctx context.Context, id uuid.UUID) (*Institute, error) {
	var i Institute
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, code, name, created_at FROM institute WHERE id = $1`, id).
		Scan(&i.ID, &i.Code, &i.Name, &i.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("institute", id)
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoPG) GetManufacturer(ctx context.Context, id uuid.UUID) (*Manufacturer, error) {
	var m Manufacturer
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, created_at FROM manufacturer WHERE id = $1`, id).
		Scan(&m.ID, &m.Name, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("manufacturer", id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoPG) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	m, err := scanMedicine(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+medicineCols+` FROM medicine WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("medicine", id)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *repoPG) ListTracked(ctx context.Context, instituteID uuid.UUID) ([]*Medicine, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+medicineCols+` FROM medicine
		WHERE id IN (
			SELECT medicine_id FROM institute_medicine WHERE institute_id = $1
			UNION
			SELECT medicine_id FROM inventory_item WHERE institute_id = $1
		)
		ORDER BY name, id`, instituteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Medicine
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *repoPG) CreateInstitute(ctx context.Context, i *Institute) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO institute (id, code, name, created_at) VALUES ($1, $2, $3, $4)`,
		i.ID, i.Code, i.Name, i.CreatedAt)
	return err
}

func (r *repoPG) CreateManufacturer(ctx context.Context, m *Manufacturer) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO manufacturer (id, name, created_at) VALUES ($1, $2, $3)`,
		m.ID, m.Name, m.CreatedAt)
	return err
}

func (r *repoPG) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO medicine (id, code, name, threshold_qty, expiry_date, manufacturer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.Code, m.Name, m.ThresholdQty, m.ExpiryDate, m.ManufacturerID, m.CreatedAt)
	return err
}

func (r *repoPG) AssignMedicine(ctx context.Context, instituteID, medicineID uuid.UUID) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO institute_medicine (institute_id, medicine_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, instituteID, medicineID)
	return err
}
