package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/service"
	"github.com/polteknik/kompen/internal/store"
)

// ListPayments handles GET /payments?status=&user_id=.
func (h *Handler) ListPayments(c echo.Context) error {
	f := store.PaymentFilter{
		Status: model.PaymentStatus(queryUpper(c, "status")),
		UserID: queryUint(c, "user_id"),
		Limit:  queryInt(c, "limit"),
		Offset: queryInt(c, "offset"),
	}
	pays, err := h.Svc.Payments.ListPayments(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": pays})
}

// CreatePayment handles POST /payments.  A student may omit student_id.
func (h *Handler) CreatePayment(c echo.Context) error {
	var in service.PaymentInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "Format permintaan tidak valid")
	}
	actor := actorFrom(c)
	if actor != nil && actor.Role == model.RoleMahasiswa && in.StudentID == 0 {
		in.StudentID = actor.ID
	}
	pay, err := h.Svc.Payments.CreatePayment(c.Request().Context(), actor, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, pay)
}

// DecidePayment handles PATCH /payments/:id/status.
func (h *Handler) DecidePayment(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pembayaran tidak valid")
	}
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "Status wajib diisi")
	}
	pay, err := h.Svc.Payments.DecidePayment(c.Request().Context(), actorFrom(c), id, model.PaymentStatus(status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, pay)
}
