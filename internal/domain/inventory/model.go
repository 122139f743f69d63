// Package inventory holds the current quantity of every medicine per
// institute and store tier. Store.Adjust is the only way a quantity changes.
package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/platform/apperror"
)

type Tier string

const (
	TierMain Tier = "MAIN"
	TierSub  Tier = "SUB"
)

func (t Tier) Valid() bool {
	return t == TierMain || t == TierSub
}

// ParseTier accepts "MAIN" or "SUB" in any case; "" yields def.
func ParseTier(s string, def Tier) (Tier, error) {
	if s == "" {
		return def, nil
	}
	t := Tier(strings.ToUpper(s))
	if !t.Valid() {
		return "", fmt.Errorf("unknown store tier %q: %w", s, apperror.ErrInvalidInput)
	}
	return t, nil
}

// Key identifies one inventory item.
type Key struct {
	InstituteID uuid.UUID `json:"institute_id"`
	MedicineID  uuid.UUID `json:"medicine_id"`
	Tier        Tier      `json:"tier"`
}

func (k Key) String() string {
	return k.InstituteID.String() + "/" + k.MedicineID.String() + "/" + string(k.Tier)
}

func (k Key) less(o Key) bool {
	return k.String() < o.String()
}

// Item is the stock record for one key. A zero-quantity item is still a
// tracked SKU and is never deleted.
type Item struct {
	InstituteID  uuid.UUID  `db:"institute_id" json:"institute_id"`
	MedicineID   uuid.UUID  `db:"medicine_id" json:"medicine_id"`
	Tier         Tier       `db:"tier" json:"tier"`
	MedicineName string     `db:"medicine_name" json:"medicine_name"`
	MedicineCode string     `db:"medicine_code" json:"medicine_code"`
	Quantity     int64      `db:"quantity" json:"quantity"`
	ThresholdQty int64      `db:"threshold_qty" json:"threshold_qty"`
	ExpiryDate   *time.Time `db:"expiry_date" json:"expiry_date,omitempty"`
	Version      int64      `db:"version" json:"version"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

func (i *Item) Key() Key {
	return Key{InstituteID: i.InstituteID, MedicineID: i.MedicineID, Tier: i.Tier}
}

// Seed carries the master data used when the first positive adjustment
// creates an item.
type Seed struct {
	MedicineName string
	MedicineCode string
	ThresholdQty int64
	ExpiryDate   *time.Time
}

func (s *Seed) validate() error {
	if s == nil {
		return fmt.Errorf("no seed for new inventory item: %w", apperror.ErrNotFound)
	}
	if s.MedicineName == "" || s.ThresholdQty <= 0 {
		return fmt.Errorf("seed needs a medicine name and a positive threshold: %w", apperror.ErrInvalidInput)
	}
	return nil
}

// InsufficientStockError is returned when an outgoing adjustment would take
// the quantity below zero. Line is the 1-based prescription line, when the
// adjustment was part of one.
type InsufficientStockError struct {
	Key       Key
	Requested int64
	Available int64
	Line      int
}

func (e *InsufficientStockError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: insufficient stock for medicine %s (%s): requested %d, available %d",
			e.Line, e.Key.MedicineID, e.Key.Tier, e.Requested, e.Available)
	}
	return fmt.Sprintf("insufficient stock for medicine %s (%s): requested %d, available %d",
		e.Key.MedicineID, e.Key.Tier, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return apperror.ErrInsufficientStock }

func (e *InsufficientStockError) Details() map[string]interface{} {
	d := map[string]interface{}{
		"medicine_id": e.Key.MedicineID,
		"tier":        e.Key.Tier,
		"requested":   e.Requested,
		"available":   e.Available,
	}
	if e.Line > 0 {
		d["line"] = e.Line
	}
	return d
}

// AtLine returns a copy of e attributed to the given prescription line.
func (e *InsufficientStockError) AtLine(line int) *InsufficientStockError {
	c := *e
	c.Line = line
	return &c
}
