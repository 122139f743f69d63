package dispensing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/platform/apperror"
)

// OrderRepository reads orders written by the approval workflow. Create is
// that workflow's entry point.
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	Create(ctx context.Context, o *Order) error
}

// PrescriptionRepository stores a prescription and its lines together.
type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
}

func prepareOrder(o *Order) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.ManufacturerStatus == "" {
		o.ManufacturerStatus = StatusPending
	}
	if o.InstituteStatus == "" {
		o.InstituteStatus = StatusPending
	}
	o.Tier = o.DestinationTier()
	return o.validate()
}

func numberLines(p *Prescription) {
	for i := range p.Lines {
		p.Lines[i].LineNo = i + 1
	}
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperror.ErrNotFound)
}
