package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/service"
	"github.com/polteknik/kompen/internal/store"
)

// ListJobs handles GET /jobs?status=&created_by=&limit=&offset=.
func (h *Handler) ListJobs(c echo.Context) error {
	f := store.JobFilter{
		Status:      model.JobStatus(queryUpper(c, "status")),
		CreatedByID: queryUint(c, "created_by"),
		Limit:       queryInt(c, "limit"),
		Offset:      queryInt(c, "offset"),
	}
	jobs, err := h.Svc.Marketplace.ListJobs(c.Request().Context(), actorFrom(c), f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": jobs})
}

// GetJob handles GET /jobs/:id.
func (h *Handler) GetJob(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pekerjaan tidak valid")
	}
	job, err := h.Svc.Marketplace.GetJob(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// CreateJob handles POST /jobs.
func (h *Handler) CreateJob(c echo.Context) error {
	var in service.JobInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "Format permintaan tidak valid")
	}
	job, err := h.Svc.Marketplace.CreateJob(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, job)
}

// UpdateJob handles PUT /jobs/:id.
func (h *Handler) UpdateJob(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pekerjaan tidak valid")
	}
	var in service.JobInput
	if err := c.Bind(&in); err != nil {
		return badRequest(c, "Format permintaan tidak valid")
	}
	job, err := h.Svc.Marketplace.UpdateJob(c.Request().Context(), actorFrom(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// SetJobStatus handles PATCH /jobs/:id/status with {"status": "OPEN"|"CLOSED"}.
func (h *Handler) SetJobStatus(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pekerjaan tidak valid")
	}
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "Status wajib diisi")
	}
	job, err := h.Svc.Marketplace.SetJobStatus(c.Request().Context(), actorFrom(c), id, model.JobStatus(status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// DeleteJob handles DELETE /jobs/:id.
func (h *Handler) DeleteJob(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pekerjaan tidak valid")
	}
	if err := h.Svc.Marketplace.DeleteJob(c.Request().Context(), actorFrom(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Apply handles POST /jobs/:id/apply.
func (h *Handler) Apply(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pekerjaan tidak valid")
	}
	app, err := h.Svc.Marketplace.Apply(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, app)
}
