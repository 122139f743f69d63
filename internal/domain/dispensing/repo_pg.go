package dispensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/medledger/internal/platform/db"
)

const orderCols = `id, manufacturer_id, institute_id, medicine_id, quantity, manufacturer_status,
	institute_status, tier, delivery_date, created_at, updated_at`

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var o Order
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.ManufacturerID, &o.InstituteID, &o.MedicineID, &o.Quantity, &o.ManufacturerStatus,
			&o.InstituteStatus, &o.Tier, &o.DeliveryDate, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("order", id)
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	if err := prepareOrder(o); err != nil {
		return err
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO orders (`+orderCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		o.ID, o.ManufacturerID, o.InstituteID, o.MedicineID, o.Quantity, o.ManufacturerStatus,
		o.InstituteStatus, o.Tier, o.DeliveryDate, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return db.MapError(fmt.Errorf("create order: %w", err))
	}
	return nil
}

type prescriptionRepoPG struct{ pool *pgxpool.Pool }

func NewPrescriptionRepoPG(pool *pgxpool.Pool) PrescriptionRepository {
	return &prescriptionRepoPG{pool: pool}
}

func (r *prescriptionRepoPG) Create(ctx context.Context, p *Prescription) error {
	q := db.Conn(ctx, r.pool)
	_, err := q.Exec(ctx, `
		INSERT INTO prescription (id, institute_id, patient_kind, patient_id, notes, issued_by, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.InstituteID, p.PatientKind, p.PatientID, p.Notes, p.IssuedBy, p.IssuedAt)
	if err != nil {
		return db.MapError(fmt.Errorf("create prescription: %w", err))
	}

	numberLines(p)
	batch := &pgx.Batch{}
	for _, l := range p.Lines {
		batch.Queue(`INSERT INTO prescription_line (prescription_id, line_no, medicine_id, quantity)
			VALUES ($1, $2, $3, $4)`, p.ID, l.LineNo, l.MedicineID, l.Quantity)
	}
	if err := q.SendBatch(ctx, batch).Close(); err != nil {
		return db.MapError(fmt.Errorf("create prescription lines: %w", err))
	}
	return nil
}

func (r *prescriptionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	q := db.Conn(ctx, r.pool)
	var p Prescription
	err := q.QueryRow(ctx, `
		SELECT id, institute_id, patient_kind, patient_id, notes, issued_by, issued_at
		FROM prescription WHERE id = $1`, id).
		Scan(&p.ID, &p.InstituteID, &p.PatientKind, &p.PatientID, &p.Notes, &p.IssuedBy, &p.IssuedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("prescription", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `
		SELECT line_no, medicine_id, quantity FROM prescription_line
		WHERE prescription_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.LineNo, &l.MedicineID, &l.Quantity); err != nil {
			return nil, err
		}
		p.Lines = append(p.Lines, l)
	}
	return &p, rows.Err()
}
