package dispensing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/medledger/internal/platform/sqlitedb"
)

type orderRepoSQLite struct{ db *sqlx.DB }

func NewOrderRepoSQLite(db *sqlx.DB) OrderRepository {
	return &orderRepoSQLite{db: db}
}

func (r *orderRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	err := sqlx.GetContext(ctx, sqlitedb.Conn(ctx, r.db), &o, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoSQLite) Create(ctx context.Context, o *Order) error {
	if err := prepareOrder(o); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err := sqlx.NamedExecContext(ctx, sqlitedb.Conn(ctx, r.db), `INSERT INTO orders (`+orderCols+`)
		VALUES (:id, :manufacturer_id, :institute_id, :medicine_id, :quantity, :manufacturer_status,
			:institute_status, :tier, :delivery_date, :created_at, :updated_at)`, o)
	if err != nil {
		return sqlitedb.MapError(fmt.Errorf("create order: %w", err))
	}
	return nil
}

type prescriptionRepoSQLite struct{ db *sqlx.DB }

func NewPrescriptionRepoSQLite(db *sqlx.DB) PrescriptionRepository {
	return &prescriptionRepoSQLite{db: db}
}

func (r *prescriptionRepoSQLite) Create(ctx context.Context, p *Prescription) error {
	q := sqlitedb.Conn(ctx, r.db)
	p.IssuedAt = p.IssuedAt.UTC()
	_, err := sqlx.NamedExecContext(ctx, q, `
		INSERT INTO prescription (id, institute_id, patient_kind, patient_id, notes, issued_by, issued_at)
		VALUES (:id, :institute_id, :patient_kind, :patient_id, :notes, :issued_by, :issued_at)`, p)
	if err != nil {
		return sqlitedb.MapError(fmt.Errorf("create prescription: %w", err))
	}

	numberLines(p)
	for _, l := range p.Lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO prescription_line (prescription_id, line_no, medicine_id, quantity)
			VALUES (?, ?, ?, ?)`, p.ID, l.LineNo, l.MedicineID, l.Quantity)
		if err != nil {
			return sqlitedb.MapError(fmt.Errorf("create prescription line %d: %w", l.LineNo, err))
		}
	}
	return nil
}

func (r *prescriptionRepoSQLite) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q := sqlitedb.Conn(ctx, r.db)
	var p Prescription
	err := sqlx.GetContext(ctx, q, &p, `
		SELECT id, institute_id, patient_kind, patient_id, notes, issued_by, issued_at
		FROM prescription WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("prescription", id)
	}
	if err != nil {
		return nil, err
	}
	err = sqlx.SelectContext(ctx, q, &p.Lines, `
		SELECT line_no, medicine_id, quantity FROM prescription_line
		WHERE prescription_id = ? ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
