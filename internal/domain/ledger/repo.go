package ledger

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Append writes entries in order. It never updates or deletes.
	Append(ctx context.Context, entries ...*Entry) error
	HasReference(ctx context.Context, txType TxType, referenceID uuid.UUID) (bool, error)
	// Query returns matching entries newest first, plus the total match count.
	Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	// NetByKey sums IN minus OUT per (medicine, tier) for one institute.
	NetByKey(ctx context.Context, instituteID uuid.UUID) ([]Net, error)
}
