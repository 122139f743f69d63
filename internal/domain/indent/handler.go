package indent

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/auth"
)

type Handler struct {
	gen *Generator
}

func NewHandler(gen *Generator) *Handler {
	return &Handler{gen: gen}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole(auth.RoleStorekeeper, auth.RolePharmacist, auth.RoleAuditor))
	read.GET("/institutes/:institute_id/indent", h.Generate)
}

// Generate handles GET /institutes/:institute_id/indent[?required_only=true].
func (h *Handler) Generate(c echo.Context) error {
	instituteID, err := uuid.Parse(c.Param("institute_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid institute_id")
	}
	ind, err := h.gen.Generate(c.Request().Context(), instituteID)
	if err != nil {
		return apperror.HTTPError(err)
	}
	if only, _ := strconv.ParseBool(c.QueryParam("required_only")); only {
		ind.Lines = ind.Required()
	}
	return c.JSON(http.StatusOK, ind)
}
