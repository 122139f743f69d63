package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/catalog"
)

// InstituteLookup resolves the institute a query is scoped to.
type InstituteLookup interface {
	GetInstitute(ctx context.Context, id uuid.UUID) (*catalog.Institute, error)
}

// ItemView is an item with its classifier status attached.
type ItemView struct {
	*Item
	Status Status `json:"status"`
}

type Service struct {
	store      Store
	institutes InstituteLookup
	now        func() time.Time
}

func NewService(store Store, institutes InstituteLookup) *Service {
	return &Service{store: store, institutes: institutes, now: time.Now}
}

// Snapshot returns every item the institute holds, both tiers, each
// classified against today's date.
func (s *Service) Snapshot(ctx context.Context, instituteID uuid.UUID) ([]ItemView, error) {
	if _, err := s.institutes.GetInstitute(ctx, instituteID); err != nil {
		return nil, err
	}
	items, err := s.store.ListByInstitute(ctx, instituteID)
	if err != nil {
		return nil, err
	}
	today := s.now()
	views := make([]ItemView, 0, len(items))
	for _, it := range items {
		views = append(views, ItemView{Item: it, Status: Classify(it, today)})
	}
	return views, nil
}

func (s *Service) GetItem(ctx context.Context, key Key) (*ItemView, error) {
	it, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return &ItemView{Item: it, Status: Classify(it, s.now())}, nil
}
