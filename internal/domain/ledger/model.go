// Package ledger is the append-only record of every stock movement. Each
// entry carries the item's balance immediately after it was applied.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/platform/apperror"
)

type TxType string

const (
	TxOrderDelivery     TxType = "ORDER_DELIVERY"
	TxPrescriptionIssue TxType = "PRESCRIPTION_ISSUE"
	TxStockTransfer     TxType = "STOCK_TRANSFER"
)

func (t TxType) Valid() bool {
	switch t {
	case TxOrderDelivery, TxPrescriptionIssue, TxStockTransfer:
		return true
	}
	return false
}

type Direction string

const (
	In  Direction = "IN"
	Out Direction = "OUT"
)

// ErrDuplicateReference is returned by Append when a delivery for the same
// order has already been credited.
var ErrDuplicateReference = errors.New("order delivery already recorded")

type Entry struct {
	Seq              int64          `db:"seq" json:"seq"`
	ID               uuid.UUID      `db:"id" json:"id"`
	InstituteID      uuid.UUID      `db:"institute_id" json:"institute_id"`
	TxType           TxType         `db:"tx_type" json:"tx_type"`
	ReferenceID      uuid.UUID      `db:"reference_id" json:"reference_id"`
	MedicineID       uuid.UUID      `db:"medicine_id" json:"medicine_id"`
	MedicineName     string         `db:"medicine_name" json:"medicine_name"`
	ManufacturerName string         `db:"manufacturer_name" json:"manufacturer_name"`
	Tier             inventory.Tier `db:"tier" json:"tier"`
	ExpiryDate       *time.Time     `db:"expiry_date" json:"expiry_date,omitempty"`
	Direction        Direction      `db:"direction" json:"direction"`
	Quantity         int64          `db:"quantity" json:"quantity"`
	BalanceAfter     int64          `db:"balance_after" json:"balance_after"`
	RecordedAt       time.Time      `db:"recorded_at" json:"recorded_at"`
}

// Signed returns the quantity with the sign of its direction.
func (e *Entry) Signed() int64 {
	if e.Direction == Out {
		return -e.Quantity
	}
	return e.Quantity
}

// prepare fills in the id and timestamp and checks the entry's invariants.
func (e *Entry) prepare(now time.Time) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = now
	}
	e.RecordedAt = e.RecordedAt.UTC()
	switch {
	case !e.TxType.Valid():
		return fmt.Errorf("ledger entry: unknown tx type %q: %w", e.TxType, apperror.ErrInvalidInput)
	case e.Direction != In && e.Direction != Out:
		return fmt.Errorf("ledger entry: unknown direction %q: %w", e.Direction, apperror.ErrInvalidInput)
	case !e.Tier.Valid():
		return fmt.Errorf("ledger entry: unknown tier %q: %w", e.Tier, apperror.ErrInvalidInput)
	case e.ReferenceID == uuid.Nil || e.InstituteID == uuid.Nil || e.MedicineID == uuid.Nil:
		return fmt.Errorf("ledger entry: institute, medicine and reference ids are required: %w", apperror.ErrInvalidInput)
	case e.Quantity <= 0:
		return fmt.Errorf("ledger entry: quantity must be positive: %w", apperror.ErrInvalidInput)
	case e.BalanceAfter < 0:
		return fmt.Errorf("ledger entry: negative balance_after: %w", apperror.ErrInvalidInput)
	}
	return nil
}

// Filter selects entries for one institute. From is inclusive, To exclusive.
type Filter struct {
	InstituteID uuid.UUID
	From        *time.Time
	To          *time.Time
	TxType      TxType
	MedicineID  *uuid.UUID
	ReferenceID *uuid.UUID
}

// Net is the signed ledger total for one inventory key.
type Net struct {
	MedicineID uuid.UUID      `db:"medicine_id" json:"medicine_id"`
	Tier       inventory.Tier `db:"tier" json:"tier"`
	Net        int64          `db:"net" json:"net"`
	Entries    int64          `db:"entries" json:"entries"`
}

// Discrepancy is a key whose quantity disagrees with its ledger history.
type Discrepancy struct {
	MedicineID   uuid.UUID      `json:"medicine_id"`
	MedicineName string         `json:"medicine_name"`
	Tier         inventory.Tier `json:"tier"`
	Quantity     int64          `json:"quantity"`
	LedgerNet    int64          `json:"ledger_net"`
	Difference   int64          `json:"difference"`
}

type Reconciliation struct {
	InstituteID   uuid.UUID     `json:"institute_id"`
	CheckedAt     time.Time     `json:"checked_at"`
	KeysChecked   int           `json:"keys_checked"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

func (r *Reconciliation) Balanced() bool {
	return len(r.Discrepancies) == 0
}
