package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/medledger/internal/platform/sqlitedb"
)

type repoSQLite struct{ db *sqlx.DB }

func NewRepoSQLite(db *sqlx.DB) Repository {
	return &repoSQLite{db: db}
}

func (r *repoSQLite) get(ctx context.Context, dest interface{}, kind string, id uuid.UUID, query string) error {
	err := sqlx.GetContext(ctx, sqlitedb.Conn(ctx, r.db), dest, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound(kind, id)
	}
	return err
}

func (r *repoSQLite) GetInstitute(ctx context.Context, id uuid.UUID) (*Institute, error) {
	var i Institute
	if err := r.get(ctx, &i, "institute", id, `SELECT id, code, name, created_at FROM institute WHERE id = ?`); err != nil {
		return nil, err
	}
	return &i, nil
}

func (r *repoSQLite) GetManufacturer(ctx context.Context, id uuid.UUID) (*Manufacturer, error) {
	var m Manufacturer
	if err := r.get(ctx, &m, "manufacturer", id, `SELECT id, name, created_at FROM manufacturer WHERE id = ?`); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoSQLite) GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error) {
	var m Medicine
	if err := r.get(ctx, &m, "medicine", id, `SELECT `+medicineCols+` FROM medicine WHERE id = ?`); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *repoSQLite) ListTracked(ctx context.Context, instituteID uuid.UUID) ([]*Medicine, error) {
	var out []*Medicine
	err := sqlx.SelectContext(ctx, sqlitedb.Conn(ctx, r.db), &out, `
		SELECT `+medicineCols+` FROM medicine
		WHERE id IN (
			SELECT medicine_id FROM institute_medicine WHERE institute_id = ?
			UNION
			SELECT medicine_id FROM inventory_item WHERE institute_id = ?
		)
		ORDER BY name, id`, instituteID, instituteID)
	return out, err
}

func (r *repoSQLite) CreateInstitute(ctx context.Context, i *Institute) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	i.CreatedAt = time.Now().UTC()
	_, err := sqlx.NamedExecContext(ctx, sqlitedb.Conn(ctx, r.db),
		`INSERT INTO institute (id, code, name, created_at) VALUES (:id, :code, :name, :created_at)`, i)
	return err
}

func (r *repoSQLite) CreateManufacturer(ctx context.Context, m *Manufacturer) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := sqlx.NamedExecContext(ctx, sqlitedb.Conn(ctx, r.db),
		`INSERT INTO manufacturer (id, name, created_at) VALUES (:id, :name, :created_at)`, m)
	return err
}

func (r *repoSQLite) CreateMedicine(ctx context.Context, m *Medicine) error {
	if err := validateMedicine(m); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	m.CreatedAt = time.Now().UTC()
	_, err := sqlx.NamedExecContext(ctx, sqlitedb.Conn(ctx, r.db), `
		INSERT INTO medicine (id, code, name, threshold_qty, expiry_date, manufacturer_id, created_at)
		VALUES (:id, :code, :name, :threshold_qty, :expiry_date, :manufacturer_id, :created_at)`, m)
	return err
}

func (r *repoSQLite) AssignMedicine(ctx context.Context, instituteID, medicineID uuid.UUID) error {
	_, err := sqlitedb.Conn(ctx, r.db).ExecContext(ctx,
		`INSERT OR IGNORE INTO institute_medicine (institute_id, medicine_id) VALUES (?, ?)`,
		instituteID, medicineID)
	return err
}
