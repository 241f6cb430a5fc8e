// Package handler exposes the compensation core over HTTP with echo.  Each
// handler builds the service.Actor from the JWT claims, calls one core
// operation and maps its Failure kind to a status code.
package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/middleware"
	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/service"
)

var logger = loggo.GetLogger("kompen.handler")

// Handler serves the core operations.
type Handler struct {
	Svc *service.Services
}

func NewHandler(svc *service.Services) *Handler {
	if svc == nil {
		panic("nil services passed to NewHandler")
	}
	return &Handler{Svc: svc}
}

// actorFrom builds the caller from the values JWTAuth stored.  It returns
// nil when the request is anonymous; the core answers that with
// Unauthorized.
func actorFrom(c echo.Context) *service.Actor {
	var id uint64
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		id = t
	case float64:
		id = uint64(t)
	case string:
		id, _ = strconv.ParseUint(t, 10, 64)
	}
	role, _ := c.Get(middleware.CtxRole).(string)
	if id == 0 || !model.Role(role).Valid() {
		return nil
	}
	return &service.Actor{ID: id, Role: model.Role(role)}
}

// statusOf maps a Failure kind to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, errors.Unauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errors.Forbidden):
		return http.StatusForbidden
	case errors.Is(err, errors.NotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.NotValid):
		return http.StatusBadRequest
	case errors.Is(err, service.InvalidState), errors.Is(err, errors.QuotaLimitExceeded):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes err as {"error": message}.  Only Failures carry a message
// meant for users; anything else is logged and hidden.
func fail(c echo.Context, err error) error {
	var f *service.Failure
	if !errors.As(err, &f) {
		logger.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Terjadi kesalahan pada server, silakan coba lagi"})
	}
	return c.JSON(statusOf(f), echo.Map{"error": f.Message})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// pathID parses the :id path parameter.
func pathID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func queryInt(c echo.Context, name string) int {
	n, _ := strconv.Atoi(c.QueryParam(name))
	if n < 0 {
		return 0
	}
	return n
}

func queryUint(c echo.Context, name string) uint64 {
	n, _ := strconv.ParseUint(c.QueryParam(name), 10, 64)
	return n
}

func queryUpper(c echo.Context, name string) string {
	return strings.ToUpper(strings.TrimSpace(c.QueryParam(name)))
}

// statusReq is the body of every PATCH .../status endpoint.
type statusReq struct {
	Status string `json:"status"`
}

func bindStatus(c echo.Context) (string, bool) {
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	s := strings.ToUpper(strings.TrimSpace(req.Status))
	return s, s != ""
}
