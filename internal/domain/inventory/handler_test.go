package inventory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func inventoryRequest(t *testing.T, h echo.HandlerFunc, target string, params map[string]string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	names := make([]string, 0, len(params))
	values := make([]string, 0, len(params))
	for k, v := range params {
		names = append(names, k)
		values = append(values, v)
	}
	c.SetParamNames(names...)
	c.SetParamValues(values...)
	return rec, h(c)
}

func TestHandler_Snapshot(t *testing.T) {
	svc, store, instID := newTestService()
	h := NewHandler(svc)
	ctx := context.Background()
	store.Adjust(ctx, Key{instID, uuid.New(), TierSub}, 1, &Seed{MedicineName: "A", ThresholdQty: 20})
	store.Adjust(ctx, Key{instID, uuid.New(), TierMain}, 50, &Seed{MedicineName: "B", ThresholdQty: 20})

	rec, err := inventoryRequest(t, h.Snapshot, "/?tier=sub", map[string]string{"institute_id": instID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Items []ItemView `json:"items"`
		Total int        `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Items[0].Tier != TierSub || body.Items[0].Status != StatusCritical {
		t.Errorf("unexpected body %+v", body)
	}
}

func TestHandler_Snapshot_BadParams(t *testing.T) {
	svc, _, instID := newTestService()
	h := NewHandler(svc)

	_, err := inventoryRequest(t, h.Snapshot, "/", map[string]string{"institute_id": "nope"})
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %v", err)
	}
	_, err = inventoryRequest(t, h.Snapshot, "/?tier=attic", map[string]string{"institute_id": instID.String()})
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad tier, got %v", err)
	}
	_, err = inventoryRequest(t, h.Snapshot, "/", map[string]string{"institute_id": uuid.NewString()})
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown institute, got %v", err)
	}
}

func TestHandler_GetItem(t *testing.T) {
	svc, store, instID := newTestService()
	h := NewHandler(svc)
	medID := uuid.New()
	store.Adjust(context.Background(), Key{instID, medID, TierSub}, 12, &Seed{MedicineName: "C", ThresholdQty: 10})

	rec, err := inventoryRequest(t, h.GetItem, "/", map[string]string{"institute_id": instID.String(), "medicine_id": medID.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var view ItemView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Quantity != 12 || view.Status != StatusNormal {
		t.Errorf("unexpected view %+v", view)
	}

	_, err = inventoryRequest(t, h.GetItem, "/?tier=MAIN", map[string]string{"institute_id": instID.String(), "medicine_id": medID.String()})
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for empty MAIN tier, got %v", err)
	}
}
