// Package router registers the HTTP routes.  Route groups are gated by role
// with the coarse RequireRole middleware; the core re-checks every call
// against its own capability table.
package router

import (
	"net/http"

	"github.com/juju/clock"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/polteknik/kompen/internal/config"
	"github.com/polteknik/kompen/internal/handler"
	"github.com/polteknik/kompen/internal/middleware"
)

// Deps are what the routes need beyond the handlers.
type Deps struct {
	Auth      *handler.AuthHandler
	API       *handler.Handler
	JWTSecret string
	Users     middleware.Accounts // re-reads the caller's role per request; nil trusts the token
	DB        handler.Pinger // nil in memory mode
	Metrics   http.Handler
	Redis     *redis.Client // nil disables rate limiting and caching
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Clock     clock.Clock
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", handler.Health(d.DB))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}
}

// RegisterAuth registers /v1/auth and /v1/me.  Login has its own, tighter
// bucket keyed by client IP.
func RegisterAuth(e *echo.Echo, d Deps) {
	g := e.Group("/v1/auth")
	g.POST("/login", d.Auth.Login, middleware.NewTokenBucket(d.RateLimit.Login(), d.Redis, d.Clock))
	g.POST("/refresh", d.Auth.Refresh)
	g.POST("/logout", d.Auth.Logout)

	e.GET("/v1/me", d.Auth.Me, middleware.JWTAuth(d.JWTSecret), middleware.CurrentRole(d.Users))
}

// Register wires every route.
func Register(e *echo.Echo, d Deps) {
	RegisterRoutes(e, d)
	RegisterAuth(e, d)
	RegisterShared(e, d)
	RegisterStudent(e, d)
	RegisterStaff(e, d)
}
