package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ehr/medledger/internal/platform/sqlitedb"
)

type repoSQLite struct{ db *sqlx.DB }

func NewRepoSQLite(db *sqlx.DB) Repository {
	return &repoSQLite{db: db}
}

func (r *repoSQLite) Append(ctx context.Context, entries ...*Entry) error {
	q := sqlitedb.Conn(ctx, r.db)
	now := time.Now().UTC()
	for _, e := range entries {
		if err := e.prepare(now); err != nil {
			return err
		}
		err := q.QueryRowxContext(ctx, insertEntry+`
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING seq`,
			e.ID, e.InstituteID, e.TxType, e.ReferenceID, e.MedicineID,
			e.MedicineName, e.ManufacturerName, e.Tier, e.ExpiryDate, e.Direction, e.Quantity, e.BalanceAfter, e.RecordedAt).
			Scan(&e.Seq)
		if err != nil {
			if e.TxType == TxOrderDelivery && sqlitedb.IsUniqueViolation(err) {
				return fmt.Errorf("order %s: %w", e.ReferenceID, ErrDuplicateReference)
			}
			return sqlitedb.MapError(fmt.Errorf("append ledger entry: %w", err))
		}
	}
	return nil
}

func (r *repoSQLite) HasReference(ctx context.Context, txType TxType, referenceID uuid.UUID) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, sqlitedb.Conn(ctx, r.db), &exists,
		`SELECT EXISTS (SELECT 1 FROM ledger_entry WHERE tx_type = ? AND reference_id = ?)`,
		txType, referenceID)
	return exists, err
}

func (r *repoSQLite) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	q := sqlitedb.Conn(ctx, r.db)
	clause, args := where(f, sqlitePlaceholder)

	var total int
	if err := sqlx.GetContext(ctx, q, &total, `SELECT COUNT(*) FROM ledger_entry`+clause, args...); err != nil {
		return nil, 0, err
	}

	var entries []*Entry
	err := sqlx.SelectContext(ctx, q, &entries,
		`SELECT `+entryCols+` FROM ledger_entry`+clause+newestFirst+` LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (r *repoSQLite) NetByKey(ctx context.Context, instituteID uuid.UUID) ([]Net, error) {
	var out []Net
	err := sqlx.SelectContext(ctx, sqlitedb.Conn(ctx, r.db), &out, `
		SELECT medicine_id, tier,
			SUM(CASE WHEN direction = 'IN' THEN quantity ELSE -quantity END) AS net,
			COUNT(*) AS entries
		FROM ledger_entry
		WHERE institute_id = ?
		GROUP BY medicine_id, tier`, instituteID)
	return out, err
}
