package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/inventory"
)

type Service struct {
	repo       Repository
	store      inventory.Store
	institutes inventory.InstituteLookup
	now        func() time.Time
}

func NewService(repo Repository, store inventory.Store, institutes inventory.InstituteLookup) *Service {
	return &Service{repo: repo, store: store, institutes: institutes, now: time.Now}
}

// Query returns one page of the institute's ledger, newest first.
func (s *Service) Query(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	if _, err := s.institutes.GetInstitute(ctx, f.InstituteID); err != nil {
		return nil, 0, err
	}
	return s.repo.Query(ctx, f, limit, offset)
}

// Reconcile compares every item's quantity with the signed sum of its ledger
// entries. Keys present on only one side are compared against zero.
func (s *Service) Reconcile(ctx context.Context, instituteID uuid.UUID) (*Reconciliation, error) {
	if _, err := s.institutes.GetInstitute(ctx, instituteID); err != nil {
		return nil, err
	}
	items, err := s.store.ListByInstitute(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	nets, err := s.repo.NetByKey(ctx, instituteID)
	if err != nil {
		return nil, err
	}

	type key struct {
		medicine uuid.UUID
		tier     inventory.Tier
	}
	ledgerNet := make(map[key]int64, len(nets))
	for _, n := range nets {
		ledgerNet[key{n.MedicineID, n.Tier}] = n.Net
	}

	rec := &Reconciliation{
		InstituteID:   instituteID,
		CheckedAt:     s.now().UTC(),
		Discrepancies: []Discrepancy{},
	}
	seen := make(map[key]bool, len(items))
	for _, it := range items {
		k := key{it.MedicineID, it.Tier}
		seen[k] = true
		net := ledgerNet[k]
		if net != it.Quantity {
			rec.Discrepancies = append(rec.Discrepancies, Discrepancy{
				MedicineID:   it.MedicineID,
				MedicineName: it.MedicineName,
				Tier:         it.Tier,
				Quantity:     it.Quantity,
				LedgerNet:    net,
				Difference:   it.Quantity - net,
			})
		}
	}
	for k, net := range ledgerNet {
		if seen[k] {
			continue
		}
		seen[k] = true
		if net != 0 {
			rec.Discrepancies = append(rec.Discrepancies, Discrepancy{
				MedicineID: k.medicine,
				Tier:       k.tier,
				LedgerNet:  net,
				Difference: -net,
			})
		}
	}
	rec.KeysChecked = len(seen)

	sort.Slice(rec.Discrepancies, func(i, j int) bool {
		a, b := rec.Discrepancies[i], rec.Discrepancies[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		return a.MedicineID.String() < b.MedicineID.String()
	})
	return rec, nil
}
