package handler

import (
	"encoding/csv"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/service"
	"github.com/polteknik/kompen/internal/store"
)

const maxImportBytes = 5 << 20

func userFilter(c echo.Context) store.UserFilter {
	return store.UserFilter{
		Role:     model.Role(queryUpper(c, "role")),
		Prodi:    c.QueryParam("prodi"),
		Kelas:    c.QueryParam("kelas"),
		Search:   c.QueryParam("q"),
		WithDebt: c.QueryParam("with_debt") == "true",
		Limit:    queryInt(c, "limit"),
		Offset:   queryInt(c, "offset"),
	}
}

// ListUsers handles GET /users?role=&prodi=&kelas=&q=&with_debt=.
func (h *Handler) ListUsers(c echo.Context) error {
	users, err := h.Svc.Users.List(c.Request().Context(), actorFrom(c), userFilter(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": users})
}

// GetUser handles GET /users/:id.
func (h *Handler) GetUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengguna tidak valid")
	}
	u, err := h.Svc.Users.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func bindUser(c echo.Context) (service.UserInput, bool) {
	var in service.UserInput
	if err := c.Bind(&in); err != nil {
		return in, false
	}
	in.Role = model.Role(strings.ToUpper(strings.TrimSpace(string(in.Role))))
	return in, true
}

// CreateUser handles POST /users.
func (h *Handler) CreateUser(c echo.Context) error {
	in, ok := bindUser(c)
	if !ok {
		return badRequest(c, "Format permintaan tidak valid")
	}
	u, err := h.Svc.Users.Create(c.Request().Context(), actorFrom(c), in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

// UpdateUser handles PUT /users/:id.
func (h *Handler) UpdateUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengguna tidak valid")
	}
	in, ok := bindUser(c)
	if !ok {
		return badRequest(c, "Format permintaan tidak valid")
	}
	u, err := h.Svc.Users.Update(c.Request().Context(), actorFrom(c), id, in)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteUser handles DELETE /users/:id.
func (h *Handler) DeleteUser(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengguna tidak valid")
	}
	if err := h.Svc.Users.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type hoursReq struct {
	Hours  *int   `json:"hours"`
	Reason string `json:"reason"`
}

// SetHours handles PUT /users/:id/hours, the administrative override.
func (h *Handler) SetHours(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return badRequest(c, "ID pengguna tidak valid")
	}
	var req hoursReq
	if err := c.Bind(&req); err != nil || req.Hours == nil {
		return badRequest(c, "Jumlah jam wajib diisi")
	}
	bal, err := h.Svc.Ledger.SetHoursAbsolute(c.Request().Context(), actorFrom(c), id, *req.Hours, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

// ImportUsers handles POST /users/import with a multipart "file" field
// holding a CSV whose header names the columns username, name, nim,
// prodi, kelas and hours.  Only name and nim are required.
func (h *Handler) ImportUsers(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return badRequest(c, "Berkas CSV wajib diunggah pada field \"file\"")
	}
	if fh.Size > maxImportBytes {
		return badRequest(c, "Berkas terlalu besar")
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()

	rows, err := parseImport(io.LimitReader(f, maxImportBytes))
	if err != nil {
		return badRequest(c, err.Error())
	}
	sum, err := h.Svc.Users.Import(c.Request().Context(), actorFrom(c), rows)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, sum)
}

type importError string

func (e importError) Error() string { return string(e) }

// parseImport reads the CSV into rows numbered by their line in the file.
// A hours cell that is not a number becomes -1 so the row fails
// validation on its own instead of aborting the import.
func parseImport(r io.Reader) ([]service.ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, importError("Berkas CSV kosong atau tidak valid")
	}
	col := map[string]int{}
	for i, name := range header {
		name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if name == "total_hours" || name == "jam" {
			name = "hours"
		}
		col[name] = i
	}
	for _, required := range []string{"name", "nim"} {
		if _, ok := col[required]; !ok {
			return nil, importError("Kolom " + required + " tidak ditemukan pada header CSV")
		}
	}
	cell := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []service.ImportRow
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, importError("CSV tidak valid: " + err.Error())
		}
		line, _ := cr.FieldPos(0)
		if strings.Join(rec, "") == "" {
			continue
		}
		hours := 0
		if v := cell(rec, "hours"); v != "" {
			if hours, err = strconv.Atoi(v); err != nil {
				hours = -1
			}
		}
		rows = append(rows, service.ImportRow{
			Line:     line,
			Username: cell(rec, "username"),
			Name:     cell(rec, "name"),
			NIM:      cell(rec, "nim"),
			Prodi:    cell(rec, "prodi"),
			Kelas:    cell(rec, "kelas"),
			Hours:    hours,
		})
	}
	return rows, nil
}
