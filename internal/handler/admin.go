package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
)

// ListClearances handles GET /clearances?status=.
func (h *Handler) ListClearances(c echo.Context) error {
	list, err := h.Svc.Clearances.List(c.Request().Context(), actorFrom(c), model.ClearanceStatus(queryUpper(c, "status")))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// DecideClearance handles PATCH /clearances/:id/status.
func (h *Handler) DecideClearance(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID permohonan tidak valid")
	}
	status, ok := bindStatus(c)
	if !ok {
		return badRequest(c, "Status wajib diisi")
	}
	cr, err := h.Svc.Clearances.Decide(c.Request().Context(), actorFrom(c), id, model.ClearanceStatus(status))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cr)
}

// ListActivity handles GET /activity?limit=.
func (h *Handler) ListActivity(c echo.Context) error {
	logs, err := h.Svc.Audit.ListRecent(c.Request().Context(), actorFrom(c), queryInt(c, "limit"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": logs})
}

// Settings handles GET /settings.
func (h *Handler) Settings(c echo.Context) error {
	all, err := h.Svc.Settings.All(c.Request().Context(), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, all)
}

type settingReq struct {
	Value string `json:"value"`
}

// SetSetting handles PUT /settings/:key.
func (h *Handler) SetSetting(c echo.Context) error {
	var req settingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "Format permintaan tidak valid")
	}
	key := c.Param("key")
	if err := h.Svc.Settings.Set(c.Request().Context(), actorFrom(c), key, req.Value); err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"key": key, "value": req.Value})
}

// Stats handles GET /reports/stats.
func (h *Handler) Stats(c echo.Context) error {
	st, err := h.Svc.Reports.Stats(c.Request().Context(), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// ExportStudents handles GET /reports/students.csv with the same filters as
// GET /users.
func (h *Handler) ExportStudents(c echo.Context) error {
	students, err := h.Svc.Reports.Students(c.Request().Context(), actorFrom(c), userFilter(c))
	if err != nil {
		return fail(c, err)
	}
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "mahasiswa-kompen.csv"))
	res.WriteHeader(http.StatusOK)

	w := csv.NewWriter(res)
	_ = w.Write([]string{"nim", "username", "name", "prodi", "kelas", "total_hours"})
	for _, s := range students {
		_ = w.Write([]string{s.NIM, s.Username, s.Name, s.Prodi, s.Kelas, strconv.Itoa(s.TotalHours)})
	}
	w.Flush()
	return w.Error()
}
