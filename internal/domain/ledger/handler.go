package ledger

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/auth"
	"github.com/ehr/medledger/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleAuditor, auth.RolePharmacist, auth.RoleStorekeeper))
	read.GET("/institutes/:institute_id/ledger", h.Query)
	read.GET("/institutes/:institute_id/reconciliation", h.Reconcile)
}

// Query handles GET /institutes/:institute_id/ledger.
func (h *Handler) Query(c echo.Context) error {
	instituteID, err := uuid.Parse(c.Param("institute_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid institute_id")
	}
	f, err := filterFromQuery(c, instituteID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	pg, err := pagination.FromContext(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	entries, total, err := h.svc.Query(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if entries == nil {
		entries = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}

// Reconcile handles GET /institutes/:institute_id/reconciliation.
func (h *Handler) Reconcile(c echo.Context) error {
	instituteID, err := uuid.Parse(c.Param("institute_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid institute_id")
	}
	rec, err := h.svc.Reconcile(c.Request().Context(), instituteID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"institute_id":  rec.InstituteID,
		"checked_at":    rec.CheckedAt,
		"keys_checked":  rec.KeysChecked,
		"balanced":      rec.Balanced(),
		"discrepancies": rec.Discrepancies,
	})
}

func filterFromQuery(c echo.Context, instituteID uuid.UUID) (Filter, error) {
	f := Filter{InstituteID: instituteID}
	if raw := c.QueryParam("from"); raw != "" {
		t, err := parseBound(raw, false)
		if err != nil {
			return f, fmt.Errorf("from: %w", err)
		}
		f.From = &t
	}
	if raw := c.QueryParam("to"); raw != "" {
		t, err := parseBound(raw, true)
		if err != nil {
			return f, fmt.Errorf("to: %w", err)
		}
		f.To = &t
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return f, fmt.Errorf("from must be before to: %w", apperror.ErrInvalidInput)
	}
	if raw := c.QueryParam("type"); raw != "" {
		f.TxType = TxType(strings.ToUpper(raw))
		if !f.TxType.Valid() {
			return f, fmt.Errorf("unknown transaction type %q: %w", raw, apperror.ErrInvalidInput)
		}
	}
	if raw := c.QueryParam("medicine_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, fmt.Errorf("invalid medicine_id: %w", apperror.ErrInvalidInput)
		}
		f.MedicineID = &id
	}
	if raw := c.QueryParam("reference_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, fmt.Errorf("invalid reference_id: %w", apperror.ErrInvalidInput)
		}
		f.ReferenceID = &id
	}
	return f, nil
}

// parseBound accepts RFC 3339 or a plain date. A plain date used as an upper
// bound covers the whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q: %w", raw, apperror.ErrInvalidInput)
	}
	if upper {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}
