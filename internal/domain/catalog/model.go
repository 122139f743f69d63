// Package catalog reads the medicine master data and institute directory that
// the ledger core is seeded from. Registration of these records belongs to
// other workflows; the write methods exist for those workflows and for tests.
package catalog

import (
	"time"

	"github.com/google/uuid"
)

type Institute struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Manufacturer struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Medicine struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Code           string     `db:"code" json:"code"`
	Name           string     `db:"name" json:"name"`
	ThresholdQty   int64      `db:"threshold_qty" json:"threshold_qty"`
	ExpiryDate     *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	ManufacturerID *uuid.UUID `db:"manufacturer_id" json:"manufacturer_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}
