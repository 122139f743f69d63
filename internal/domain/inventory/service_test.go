package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/medledger/internal/domain/catalog"
	"github.com/ehr/medledger/internal/platform/apperror"
)

// -- Mock Store --

type mockStore struct {
	mu    sync.Mutex
	items map[Key]*Item
}

func newMockStore() *mockStore {
	return &mockStore{items: make(map[Key]*Item)}
}

func (m *mockStore) GetQuantity(_ context.Context, key Key) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[key]; ok {
		return it.Quantity, nil
	}
	return 0, nil
}

func (m *mockStore) Get(_ context.Context, key Key) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", key, apperror.ErrNotFound)
	}
	c := *it
	return &c, nil
}

func (m *mockStore) Adjust(_ context.Context, key Key, delta int64, seed *Seed) (int64, error) {
	if err := checkAdjust(key, delta); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		if delta < 0 {
			return 0, rejection(key, delta, 0, seed)
		}
		if err := seed.validate(); err != nil {
			return 0, err
		}
		it = &Item{InstituteID: key.InstituteID, MedicineID: key.MedicineID, Tier: key.Tier,
			MedicineName: seed.MedicineName, ThresholdQty: seed.ThresholdQty, ExpiryDate: seed.ExpiryDate}
		m.items[key] = it
	}
	if it.Quantity+delta < 0 {
		return 0, rejection(key, delta, it.Quantity, seed)
	}
	it.Quantity += delta
	it.Version++
	return it.Quantity, nil
}

func (m *mockStore) ListByInstitute(_ context.Context, instituteID uuid.UUID) ([]*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Item
	for _, it := range m.items {
		if it.InstituteID == instituteID {
			c := *it
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Tier != out[j].Tier {
			return out[i].Tier < out[j].Tier
		}
		return out[i].MedicineName < out[j].MedicineName
	})
	return out, nil
}

type mockInstitutes map[uuid.UUID]*catalog.Institute

func (m mockInstitutes) GetInstitute(_ context.Context, id uuid.UUID) (*catalog.Institute, error) {
	if i, ok := m[id]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("institute %s: %w", id, apperror.ErrNotFound)
}

func newTestService() (*Service, *mockStore, uuid.UUID) {
	store := newMockStore()
	inst := &catalog.Institute{ID: uuid.New(), Code: "PHC-1", Name: "PHC One"}
	svc := NewService(store, mockInstitutes{inst.ID: inst})
	svc.now = func() time.Time { return today }
	return svc, store, inst.ID
}

func TestService_SnapshotClassifiesEveryItem(t *testing.T) {
	svc, store, instID := newTestService()
	ctx := context.Background()
	low := &Seed{MedicineName: "Amoxicillin", ThresholdQty: 20, ExpiryDate: expiringIn(60)}
	stale := &Seed{MedicineName: "Cough syrup", ThresholdQty: 10, ExpiryDate: expiringIn(-2)}
	store.Adjust(ctx, Key{instID, uuid.New(), TierSub}, 3, low)
	store.Adjust(ctx, Key{instID, uuid.New(), TierMain}, 100, stale)

	views, err := svc.Snapshot(ctx, instID)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 items, got %d", len(views))
	}
	if views[0].Tier != TierMain || views[0].Status != StatusExpired {
		t.Errorf("expected expired MAIN item first, got %s %s", views[0].Tier, views[0].Status)
	}
	if views[1].Status != StatusVeryLow {
		t.Errorf("expected VERY_LOW, got %s", views[1].Status)
	}
}

func TestService_SnapshotUnknownInstitute(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.Snapshot(context.Background(), uuid.New()); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_GetItem(t *testing.T) {
	svc, store, instID := newTestService()
	ctx := context.Background()
	key := Key{instID, uuid.New(), TierSub}
	store.Adjust(ctx, key, 25, &Seed{MedicineName: "ORS", ThresholdQty: 20})

	view, err := svc.GetItem(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if view.Quantity != 25 || view.Status != StatusNormal {
		t.Errorf("unexpected view %+v", view)
	}
	if _, err := svc.GetItem(ctx, Key{instID, uuid.New(), TierSub}); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
