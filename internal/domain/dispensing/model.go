// Package dispensing turns business events (a delivered order, an issued
// prescription, a transfer between tiers) into inventory adjustments and
// ledger entries, all or nothing.
package dispensing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/domain/ledger"
	"github.com/ehr/medledger/internal/platform/apperror"
)

// TrackStatus is one side of the order handshake.
type TrackStatus string

const (
	StatusPending   TrackStatus = "PENDING"
	StatusApproved  TrackStatus = "APPROVED"
	StatusRejected  TrackStatus = "REJECTED"
	StatusDelivered TrackStatus = "DELIVERED"
)

func (s TrackStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDelivered:
		return true
	}
	return false
}

// Order is owned by the approval workflow. The manufacturer and the institute
// each move their own track; stock is credited once both say DELIVERED.
type Order struct {
	ID                 uuid.UUID      `db:"id" json:"id"`
	ManufacturerID     uuid.UUID      `db:"manufacturer_id" json:"manufacturer_id"`
	InstituteID        uuid.UUID      `db:"institute_id" json:"institute_id"`
	MedicineID         uuid.UUID      `db:"medicine_id" json:"medicine_id"`
	Quantity           int64          `db:"quantity" json:"quantity"`
	ManufacturerStatus TrackStatus    `db:"manufacturer_status" json:"manufacturer_status"`
	InstituteStatus    TrackStatus    `db:"institute_status" json:"institute_status"`
	Tier               inventory.Tier `db:"tier" json:"tier"`
	DeliveryDate       *time.Time     `db:"delivery_date" json:"delivery_date,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updated_at"`
}

// BothDelivered is the only place the two tracks are combined.
func (o *Order) BothDelivered() bool {
	return o.ManufacturerStatus == StatusDelivered && o.InstituteStatus == StatusDelivered
}

// DestinationTier is the tier a delivery credits, SUB unless set.
func (o *Order) DestinationTier() inventory.Tier {
	if o.Tier == "" {
		return inventory.TierSub
	}
	return o.Tier
}

func (o *Order) validate() error {
	if o == nil {
		return fmt.Errorf("order is required: %w", apperror.ErrInvalidInput)
	}
	if o.ID == uuid.Nil || o.InstituteID == uuid.Nil || o.MedicineID == uuid.Nil || o.ManufacturerID == uuid.Nil {
		return fmt.Errorf("order %s: id, institute, medicine and manufacturer are required: %w", o.ID, apperror.ErrInvalidInput)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("order %s: quantity must be positive: %w", o.ID, apperror.ErrInvalidInput)
	}
	if !o.ManufacturerStatus.Valid() || !o.InstituteStatus.Valid() {
		return fmt.Errorf("order %s: unknown status: %w", o.ID, apperror.ErrInvalidInput)
	}
	if !o.DestinationTier().Valid() {
		return fmt.Errorf("order %s: unknown tier %q: %w", o.ID, o.Tier, apperror.ErrInvalidInput)
	}
	return nil
}

type PatientKind string

const (
	PatientEmployee     PatientKind = "EMPLOYEE"
	PatientFamilyMember PatientKind = "FAMILY_MEMBER"
)

type Line struct {
	LineNo     int       `db:"line_no" json:"line_no"`
	MedicineID uuid.UUID `db:"medicine_id" json:"medicine_id"`
	Quantity   int64     `db:"quantity" json:"quantity"`
}

// Prescription is written once, after every line has been debited.
type Prescription struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	InstituteID uuid.UUID   `db:"institute_id" json:"institute_id"`
	PatientKind PatientKind `db:"patient_kind" json:"patient_kind"`
	PatientID   uuid.UUID   `db:"patient_id" json:"patient_id"`
	Notes       string      `db:"notes" json:"notes"`
	IssuedBy    string      `db:"issued_by" json:"issued_by"`
	IssuedAt    time.Time   `db:"issued_at" json:"issued_at"`
	Lines       []Line      `db:"-" json:"lines"`
}

// PrescriptionDraft is what the pharmacy or doctor submits.
type PrescriptionDraft struct {
	InstituteID uuid.UUID   `json:"institute_id"`
	PatientKind PatientKind `json:"patient_kind"`
	PatientID   uuid.UUID   `json:"patient_id"`
	Lines       []Line      `json:"lines"`
	Notes       string      `json:"notes"`
	IssuedBy    string      `json:"-"`
}

func (d *PrescriptionDraft) Validate() error {
	if d == nil {
		return fmt.Errorf("prescription is required: %w", apperror.ErrInvalidInput)
	}
	if d.InstituteID == uuid.Nil {
		return fmt.Errorf("institute_id is required: %w", apperror.ErrInvalidInput)
	}
	if d.PatientKind != PatientEmployee && d.PatientKind != PatientFamilyMember {
		return fmt.Errorf("patient_kind must be EMPLOYEE or FAMILY_MEMBER: %w", apperror.ErrInvalidInput)
	}
	if d.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required: %w", apperror.ErrInvalidInput)
	}
	if len(d.Lines) == 0 {
		return fmt.Errorf("at least one line is required: %w", apperror.ErrInvalidInput)
	}
	for i, l := range d.Lines {
		if l.MedicineID == uuid.Nil {
			return fmt.Errorf("line %d: medicine_id is required: %w", i+1, apperror.ErrInvalidInput)
		}
		if l.Quantity <= 0 {
			return fmt.Errorf("line %d: quantity must be positive: %w", i+1, apperror.ErrInvalidInput)
		}
	}
	return nil
}

// TransferDraft moves stock between the tiers of one institute.
type TransferDraft struct {
	InstituteID uuid.UUID      `json:"institute_id"`
	MedicineID  uuid.UUID      `json:"medicine_id"`
	From        inventory.Tier `json:"from"`
	To          inventory.Tier `json:"to"`
	Quantity    int64          `json:"quantity"`
}

func (d *TransferDraft) Validate() error {
	if d == nil {
		return fmt.Errorf("transfer is required: %w", apperror.ErrInvalidInput)
	}
	if d.InstituteID == uuid.Nil || d.MedicineID == uuid.Nil {
		return fmt.Errorf("institute_id and medicine_id are required: %w", apperror.ErrInvalidInput)
	}
	if !d.From.Valid() || !d.To.Valid() {
		return fmt.Errorf("from and to must be MAIN or SUB: %w", apperror.ErrInvalidInput)
	}
	if d.From == d.To {
		return fmt.Errorf("transfer from %s to itself: %w", d.From, apperror.ErrInvalidInput)
	}
	if d.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive: %w", apperror.ErrInvalidInput)
	}
	return nil
}

// DeliveryResult reports what RecordDelivery did. Exactly one of Applied,
// Duplicate and Pending is set.
type DeliveryResult struct {
	Applied   bool          `json:"applied"`
	Duplicate bool          `json:"duplicate"`
	Pending   bool          `json:"pending"`
	Entry     *ledger.Entry `json:"entry,omitempty"`
	Balance   int64         `json:"balance"`
}

func (r *DeliveryResult) Outcome() string {
	switch {
	case r.Applied:
		return "applied"
	case r.Duplicate:
		return "duplicate"
	default:
		return "pending"
	}
}
