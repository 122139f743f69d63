package dispensing

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/auth"
)

type Handler struct {
	proc *Processor
}

func NewHandler(proc *Processor) *Handler {
	return &Handler{proc: proc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	store := api.Group("", auth.RequireRole(auth.RoleStorekeeper, auth.RolePharmacist))
	store.POST("/orders/:id/delivery", h.RecordDelivery)
	store.POST("/transfers", h.TransferStock)

	issue := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist))
	issue.POST("/prescriptions", h.RecordIssuance)

	read := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RolePharmacist, auth.RoleAuditor))
	read.GET("/prescriptions/:id", h.GetPrescription)
}

// RecordDelivery handles POST /orders/:id/delivery. It is safe to call every
// time either side of the order changes status.
func (h *Handler) RecordDelivery(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	o, res, err := h.proc.DeliverOrder(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	status := http.StatusOK
	if res.Applied {
		status = http.StatusCreated
	}
	return c.JSON(status, map[string]interface{}{
		"order_id":            o.ID,
		"outcome":             res.Outcome(),
		"manufacturer_status": o.ManufacturerStatus,
		"institute_status":    o.InstituteStatus,
		"balance":             res.Balance,
		"entry":               res.Entry,
	})
}

// RecordIssuance handles POST /prescriptions.
func (h *Handler) RecordIssuance(c echo.Context) error {
	var d PrescriptionDraft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d.IssuedBy = auth.UserIDFromContext(c.Request().Context())

	rx, err := h.proc.RecordIssuance(c.Request().Context(), &d)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid prescription id")
	}
	rx, err := h.proc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusOK, rx)
}

// TransferStock handles POST /transfers.
func (h *Handler) TransferStock(c echo.Context) error {
	var d TransferDraft
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entries, err := h.proc.TransferStock(c.Request().Context(), &d)
	if err != nil {
		return apperror.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"reference_id": entries[0].ReferenceID,
		"entries":      entries,
	})
}
