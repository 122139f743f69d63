package inventory

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RolePharmacist, auth.RoleStorekeeper, auth.RoleDoctor, auth.RoleAuditor))
	read.GET("/institutes/:institute_id/inventory", h.Snapshot)
	read.GET("/institutes/:institute_id/inventory/:medicine_id", h.GetItem)
}

// Snapshot handles GET /institutes/:institute_id/inventory[?tier=&status=].
func (h *Handler) Snapshot(c echo.Context) error {
	instituteID, err := uuid.Parse(c.Param("institute_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid institute_id")
	}
	var tier Tier
	if raw := c.QueryParam("tier"); raw != "" {
		if tier, err = ParseTier(raw, ""); err != nil {
			return apperror.HTTPError(err)
		}
	}
	status := Status(c.QueryParam("status"))

	views, err := h.svc.Snapshot(c.Request().Context(), instituteID)
	if err != nil {
		return apperror.HTTPError(err)
	}

	out := make([]ItemView, 0, len(views))
	for _, v := range views {
		if tier != "" && v.Tier != tier {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, v)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"institute_id": instituteID,
		"items":        out,
		"total":        len(out),
	})
}

// GetItem handles GET /institutes/:institute_id/inventory/:medicine_id[?tier=SUB].
func (h *Handler) GetItem(c echo.Context) error {
	instituteID, err := uuid.Parse(c.Param("institute_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid institute_id")
	}
	medicineID, err := uuid.Parse(c.Param("medicine_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid medicine_id")
	}
	tier, err := ParseTier(c.QueryParam("tier"), TierSub)
	if err != nil {
		return apperror.HTTPError(err)
	}

	view, err := h.svc.GetItem(c.Request().Context(), Key{InstituteID: instituteID, MedicineID: medicineID, Tier: tier})
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}
