package ledger

import (
	"fmt"
	"strings"
)

const entryCols = `seq, id, institute_id, tx_type, reference_id, medicine_id, medicine_name,
	manufacturer_name, tier, expiry_date, direction, quantity, balance_after, recorded_at`

const insertEntry = `INSERT INTO ledger_entry (id, institute_id, tx_type, reference_id, medicine_id,
	medicine_name, manufacturer_name, tier, expiry_date, direction, quantity, balance_after, recorded_at)`

const newestFirst = ` ORDER BY recorded_at DESC, seq DESC`

// where renders f as a WHERE clause. placeholder returns the driver's bind
// marker for the n-th (1-based) argument.
func where(f Filter, placeholder func(n int) string) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}

	add("institute_id = %s", f.InstituteID)
	if f.From != nil {
		add("recorded_at >= %s", f.From.UTC())
	}
	if f.To != nil {
		add("recorded_at < %s", f.To.UTC())
	}
	if f.TxType != "" {
		add("tx_type = %s", f.TxType)
	}
	if f.MedicineID != nil {
		add("medicine_id = %s", *f.MedicineID)
	}
	if f.ReferenceID != nil {
		add("reference_id = %s", *f.ReferenceID)
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func sqlitePlaceholder(int) string { return "?" }
