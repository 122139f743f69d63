package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Store is the single source of truth for quantities.
type Store interface {
	// GetQuantity returns 0 when no item exists for key.
	GetQuantity(ctx context.Context, key Key) (int64, error)
	// Get returns apperror.ErrNotFound when no item exists for key.
	Get(ctx context.Context, key Key) (*Item, error)
	// Adjust applies delta atomically and returns the new balance. A negative
	// delta that would take the quantity below zero fails with
	// *InsufficientStockError and changes nothing. The first positive delta
	// on an unknown key creates the item from seed.
	Adjust(ctx context.Context, key Key, delta int64, seed *Seed) (int64, error)
	// ListByInstitute returns every item of both tiers, ordered by tier then
	// medicine name.
	ListByInstitute(ctx context.Context, instituteID uuid.UUID) ([]*Item, error)
}
