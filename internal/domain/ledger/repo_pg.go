package ledger

import (
	"context"
	"fmt"
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

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.Seq, &e.ID, &e.InstituteID, &e.TxType, &e.ReferenceID, &e.MedicineID, &e.MedicineName,
		&e.ManufacturerName, &e.Tier, &e.ExpiryDate, &e.Direction, &e.Quantity, &e.BalanceAfter, &e.RecordedAt)
	return &e, err
}

func (r *repoPG) Append(ctx context.Context, entries ...*Entry) error {
	q := db.Conn(ctx, r.pool)
	now := time.Now().UTC()
	for _, e := range entries {
		if err := e.prepare(now); err != nil {
			return err
		}
		err := q.QueryRow(ctx, insertEntry+`
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING seq`,
			e.ID, e.InstituteID, e.TxType, e.ReferenceID, e.MedicineID,
			e.MedicineName, e.ManufacturerName, e.Tier, e.ExpiryDate, e.Direction, e.Quantity, e.BalanceAfter, e.RecordedAt).
			Scan(&e.Seq)
		if err != nil {
			if e.TxType == TxOrderDelivery && db.IsUniqueViolation(err) {
				return fmt.Errorf("order %s: %w", e.ReferenceID, ErrDuplicateReference)
			}
			return db.MapError(fmt.Errorf("append ledger entry: %w", err))
		}
	}
	return nil
}

func (r *repoPG) HasReference(ctx context.Context, txType TxType, referenceID uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_entry WHERE tx_type = $1 AND reference_id = $2)`,
		txType, referenceID).Scan(&exists)
	return exists, err
}

func (r *repoPG) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	q := db.Conn(ctx, r.pool)
	clause, args := where(f, pgPlaceholder)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entry`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	args = append(args, limit, offset)
	rows, err := q.Query(ctx, `SELECT `+entryCols+` FROM ledger_entry`+clause+newestFirst+
		fmt.Sprintf(` LIMIT $%d OFFSET $%d`, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *repoPG) NetByKey(ctx context.Context, instituteID uuid.UUID) ([]Net, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT medicine_id, tier,
			SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END) AS net,
			COUNT(*) AS entries
		FROM ledger_entry
		WHERE institute_id = $1
		GROUP BY medicine_id, tier`, instituteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Net
	for rows.Next() {
		var n Net
		if err := rows.Scan(&n.MedicineID, &n.Tier, &n.Net, &n.Entries); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
