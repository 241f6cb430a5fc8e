package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/model"
)

// RequireRole rejects with 403 any request whose role claim is not one of
// roles.  It must run after JWTAuth.  The service layer re-checks every
// operation; this gate only keeps whole route groups away from roles that
// can never use them.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[string(r)] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(string)
			if !ok || !allowed[role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "Anda tidak memiliki akses untuk tindakan ini"})
			}
			return next(c)
		}
	}
}
