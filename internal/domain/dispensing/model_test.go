package dispensing

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/inventory"
	"github.com/ehr/medledger/internal/platform/apperror"
)

func TestOrder_BothDelivered(t *testing.T) {
	tests := []struct {
		manufacturer, institute TrackStatus
		want                    bool
	}{
		{StatusDelivered, StatusDelivered, true},
		{StatusDelivered, StatusApproved, false},
		{StatusApproved, StatusDelivered, false},
		{StatusPending, StatusPending, false},
		{StatusRejected, StatusDelivered, false},
	}
	for _, tt := range tests {
		o := &Order{ManufacturerStatus: tt.manufacturer, InstituteStatus: tt.institute}
		if got := o.BothDelivered(); got != tt.want {
			t.Errorf("%s/%s: BothDelivered = %v, want %v", tt.manufacturer, tt.institute, got, tt.want)
		}
	}
}

func TestOrder_DestinationTier(t *testing.T) {
	if tier := (&Order{}).DestinationTier(); tier != inventory.TierSub {
		t.Errorf("expected SUB by default, got %s", tier)
	}
	if tier := (&Order{Tier: inventory.TierMain}).DestinationTier(); tier != inventory.TierMain {
		t.Errorf("expected MAIN, got %s", tier)
	}
}

func TestOrder_Validate(t *testing.T) {
	valid := func() *Order {
		return &Order{
			ID: uuid.New(), ManufacturerID: uuid.New(), InstituteID: uuid.New(), MedicineID: uuid.New(),
			Quantity: 10, ManufacturerStatus: StatusPending, InstituteStatus: StatusPending,
		}
	}
	if err := valid().validate(); err != nil {
		t.Fatalf("expected valid order, got %v", err)
	}
	tests := map[string]func(o *Order){
		"zero quantity":   func(o *Order) { o.Quantity = 0 },
		"no institute":    func(o *Order) { o.InstituteID = uuid.Nil },
		"bad status":      func(o *Order) { o.InstituteStatus = "SHIPPED" },
		"bad tier":        func(o *Order) { o.Tier = "WARD" },
		"no manufacturer": func(o *Order) { o.ManufacturerID = uuid.Nil },
	}
	for name, mutate := range tests {
		o := valid()
		mutate(o)
		if err := o.validate(); !errors.Is(err, apperror.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
	var nilOrder *Order
	if err := nilOrder.validate(); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Errorf("nil order: expected ErrInvalidInput, got %v", err)
	}
}

func TestPrescriptionDraft_Validate(t *testing.T) {
	valid := func() *PrescriptionDraft {
		return &PrescriptionDraft{
			InstituteID: uuid.New(),
			PatientKind: PatientEmployee,
			PatientID:   uuid.New(),
			Lines:       []Line{{MedicineID: uuid.New(), Quantity: 2}},
		}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
	tests := map[string]func(d *PrescriptionDraft){
		"no institute":   func(d *PrescriptionDraft) { d.InstituteID = uuid.Nil },
		"bad kind":       func(d *PrescriptionDraft) { d.PatientKind = "VISITOR" },
		"no patient":     func(d *PrescriptionDraft) { d.PatientID = uuid.Nil },
		"no lines":       func(d *PrescriptionDraft) { d.Lines = nil },
		"zero quantity":  func(d *PrescriptionDraft) { d.Lines[0].Quantity = 0 },
		"no medicine id": func(d *PrescriptionDraft) { d.Lines[0].MedicineID = uuid.Nil },
	}
	for name, mutate := range tests {
		d := valid()
		mutate(d)
		if err := d.Validate(); !errors.Is(err, apperror.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestTransferDraft_Validate(t *testing.T) {
	valid := func() *TransferDraft {
		return &TransferDraft{InstituteID: uuid.New(), MedicineID: uuid.New(), From: inventory.TierMain, To: inventory.TierSub, Quantity: 5}
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("expected valid draft, got %v", err)
	}
	tests := map[string]func(d *TransferDraft){
		"same tier":     func(d *TransferDraft) { d.To = inventory.TierMain },
		"unknown tier":  func(d *TransferDraft) { d.From = "" },
		"zero quantity": func(d *TransferDraft) { d.Quantity = 0 },
		"no medicine":   func(d *TransferDraft) { d.MedicineID = uuid.Nil },
	}
	for name, mutate := range tests {
		d := valid()
		mutate(d)
		if err := d.Validate(); !errors.Is(err, apperror.ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", name, err)
		}
	}
}

func TestDeliveryResult_Outcome(t *testing.T) {
	if got := (&DeliveryResult{Applied: true}).Outcome(); got != "applied" {
		t.Errorf("got %s", got)
	}
	if got := (&DeliveryResult{Duplicate: true}).Outcome(); got != "duplicate" {
		t.Errorf("got %s", got)
	}
	if got := (&DeliveryResult{Pending: true}).Outcome(); got != "pending" {
		t.Errorf("got %s", got)
	}
}
