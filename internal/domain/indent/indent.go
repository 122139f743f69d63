// Package indent computes the replenishment list for an institute from its
// current SUB-tier stock. Nothing here is stored; every call is a fresh
// snapshot.
package indent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/catalog"
	"github.com/ehr/medledger/internal/domain/inventory"
)

// MinBuffer is the policy floor for the buffer quantity of any medicine.
const MinBuffer = 10

const RemarkBelowBuffer = "Below buffer stock"

type Line struct {
	MedicineID   uuid.UUID        `json:"medicine_id"`
	MedicineCode string           `json:"medicine_code"`
	MedicineName string           `json:"medicine_name"`
	StockOnHand  int64            `json:"stock_on_hand"`
	BufferQty    int64            `json:"buffer_qty"`
	RequiredQty  int64            `json:"required_qty"`
	Remark       string           `json:"remark"`
	Status       inventory.Status `json:"status"`
}

type Indent struct {
	InstituteID   uuid.UUID `json:"institute_id"`
	InstituteCode string    `json:"institute_code"`
	InstituteName string    `json:"institute_name"`
	GeneratedAt   time.Time `json:"generated_at"`
	Lines         []Line    `json:"lines"`
}

// Required returns the lines that need replenishment.
func (i *Indent) Required() []Line {
	out := make([]Line, 0, len(i.Lines))
	for _, l := range i.Lines {
		if l.RequiredQty > 0 {
			out = append(out, l)
		}
	}
	return out
}

// Catalog is the part of the medicine master data the generator reads.
type Catalog interface {
	GetInstitute(ctx context.Context, id uuid.UUID) (*catalog.Institute, error)
	ListTracked(ctx context.Context, instituteID uuid.UUID) ([]*catalog.Medicine, error)
}

type Generator struct {
	catalog Catalog
	store   inventory.Store
	now     func() time.Time
}

func NewGenerator(cat Catalog, store inventory.Store) *Generator {
	return &Generator{catalog: cat, store: store, now: time.Now}
}

// Generate builds the indent for one institute, one line per tracked
// medicine in name order.
func (g *Generator) Generate(ctx context.Context, instituteID uuid.UUID) (*Indent, error) {
	inst, err := g.catalog.GetInstitute(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	meds, err := g.catalog.ListTracked(ctx, instituteID)
	if err != nil {
		return nil, err
	}

	now := g.now()
	ind := &Indent{
		InstituteID:   inst.ID,
		InstituteCode: inst.Code,
		InstituteName: inst.Name,
		GeneratedAt:   now.UTC(),
		Lines:         make([]Line, 0, len(meds)),
	}
	for _, m := range meds {
		key := inventory.Key{InstituteID: instituteID, MedicineID: m.ID, Tier: inventory.TierSub}
		onHand, err := g.store.GetQuantity(ctx, key)
		if err != nil {
			return nil, err
		}
		l := lineFor(m, onHand)
		l.Status = inventory.Classify(&inventory.Item{
			Quantity:     onHand,
			ThresholdQty: m.ThresholdQty,
			ExpiryDate:   m.ExpiryDate,
		}, now)
		ind.Lines = append(ind.Lines, l)
	}
	return ind, nil
}

func lineFor(m *catalog.Medicine, onHand int64) Line {
	buffer := m.ThresholdQty
	if buffer < MinBuffer {
		buffer = MinBuffer
	}
	required := buffer - onHand
	if required < 0 {
		required = 0
	}
	l := Line{
		MedicineID:   m.ID,
		MedicineCode: m.Code,
		MedicineName: m.Name,
		StockOnHand:  onHand,
		BufferQty:    buffer,
		RequiredQty:  required,
	}
	if required > 0 {
		l.Remark = RemarkBelowBuffer
	}
	return l
}
