package middleware

import (
	"context"
	"net/http"

	"github.com/juju/errors"
	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
	"github.com/polteknik/kompen/internal/store"
)

// Accounts loads a user by id; store.Reader satisfies it.
type Accounts interface {
	GetUser(ctx context.Context, id uint64) (model.User, error)
}

// CurrentRole replaces the role claim set by JWTAuth with the role the
// account holds now, so a role change or a deleted account takes effect on
// the next request rather than when the access token expires.  It must run
// after JWTAuth and before RequireRole.  A nil users disables it.
func CurrentRole(users Accounts) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if users == nil {
			return next
		}
		return func(c echo.Context) error {
			uid, ok := c.Get(CtxUserID).(uint64)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Silakan login terlebih dahulu"})
			}
			u, err := users.GetUser(c.Request().Context(), uid)
			if errors.Is(err, store.ErrNotFound) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "Akun tidak ditemukan, silakan login kembali"})
			}
			if err != nil {
				logger.Errorf("load account %d: %v", uid, err)
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "Terjadi kesalahan pada server, silakan coba lagi"})
			}
			c.Set(CtxRole, string(u.Role))
			return next(c)
		}
	}
}
