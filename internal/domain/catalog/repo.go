package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/platform/apperror"
)

// Repository is the read side used by the processor and the indent
// generator, plus the writes used by registration.
type Repository interface {
	GetInstitute(ctx context.Context, id uuid.UUID) (*Institute, error)
	GetManufacturer(ctx context.Context, id uuid.UUID) (*Manufacturer, error)
	GetMedicine(ctx context.Context, id uuid.UUID) (*Medicine, error)
	// ListTracked returns the medicines assigned to the institute together
	// with any medicine it already holds stock records for, ordered by name.
	ListTracked(ctx context.Context, instituteID uuid.UUID) ([]*Medicine, error)

	CreateInstitute(ctx context.Context, i *Institute) error
	CreateManufacturer(ctx context.Context, m *Manufacturer) error
	CreateMedicine(ctx context.Context, m *Medicine) error
	AssignMedicine(ctx context.Context, instituteID, medicineID uuid.UUID) error
}

// GetMedicines resolves every id, failing with ErrNotFound on the first
// unknown one.
func GetMedicines(ctx context.Context, repo Repository, ids []uuid.UUID) (map[uuid.UUID]*Medicine, error) {
	out := make(map[uuid.UUID]*Medicine, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		m, err := repo.GetMedicine(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, nil
}

// ManufacturerName returns the name of the medicine's manufacturer, or ""
// when none is recorded.
func ManufacturerName(ctx context.Context, repo Repository, m *Medicine) (string, error) {
	if m.ManufacturerID == nil {
		return "", nil
	}
	mf, err := repo.GetManufacturer(ctx, *m.ManufacturerID)
	if err != nil {
		return "", err
	}
	return mf.Name, nil
}

func validateMedicine(m *Medicine) error {
	if m.Code == "" || m.Name == "" {
		return fmt.Errorf("medicine code and name are required: %w", apperror.ErrInvalidInput)
	}
	if m.ThresholdQty <= 0 {
		return fmt.Errorf("medicine threshold_qty must be positive: %w", apperror.ErrInvalidInput)
	}
	return nil
}

func notFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%s %s: %w", kind, id, apperror.ErrNotFound)
}
