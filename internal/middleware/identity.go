package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// identity returns the authenticated user id as a string for use in redis
// keys, or "anon" before JWTAuth has run.
func identity(c echo.Context) string {
	if id, ok := c.Get(CtxUserID).(uint64); ok && id != 0 {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}

func roleOf(c echo.Context) string {
	if r, ok := c.Get(CtxRole).(string); ok && r != "" {
		return r
	}
	return "anon"
}
