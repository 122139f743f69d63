package indent

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/medledger/internal/domain/inventory"
)

func indentRequest(t *testing.T, h echo.HandlerFunc, target, instituteID string) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("institute_id")
	c.SetParamValues(instituteID)
	return rec, h(c)
}

func TestHandler_Generate(t *testing.T) {
	low := medicine("Amlodipine", 20)
	ok := medicine("Atenolol", 20)
	g, store, inst := newTestGenerator(low, ok)
	store.qty[inventory.Key{InstituteID: inst, MedicineID: ok.ID, Tier: inventory.TierSub}] = 40
	h := NewHandler(g)

	rec, err := indentRequest(t, h.Generate, "/?required_only=true", inst.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body Indent
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Lines) != 1 || body.Lines[0].MedicineID != low.ID || body.Lines[0].RequiredQty != 20 {
		t.Errorf("unexpected lines %+v", body.Lines)
	}
}

func TestHandler_Generate_BadInstitute(t *testing.T) {
	g, _, _ := newTestGenerator()
	h := NewHandler(g)
	_, err := indentRequest(t, h.Generate, "/", "x")
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}
