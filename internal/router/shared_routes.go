package router

import (
	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/middleware"
	"github.com/polteknik/kompen/internal/model"
)

// protected opens a /v1 group behind JWT auth, the general rate limit and
// a gate on the caller's current role.
func protected(e *echo.Echo, d Deps, roles ...model.Role) *echo.Group {
	return e.Group("/v1",
		middleware.JWTAuth(d.JWTSecret),
		middleware.CurrentRole(d.Users),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Clock),
		middleware.RequireRole(roles...),
	)
}

var allRoles = []model.Role{model.RoleAdmin, model.RoleKeuangan, model.RolePengawas, model.RoleMahasiswa}

// RegisterShared registers the reads every role has some view of.  The
// core narrows results to the caller's scope.
func RegisterShared(e *echo.Echo, d Deps) {
	g := protected(e, d, allRoles...)
	g.GET("/jobs", d.API.ListJobs)
	g.GET("/jobs/:id", d.API.GetJob)
	g.GET("/applications", d.API.ListApplications)
	g.GET("/users/:id", d.API.GetUser)
	g.GET("/settings", d.API.Settings)
}

// RegisterStudent registers the MAHASISWA actions.
func RegisterStudent(e *echo.Echo, d Deps) {
	g := protected(e, d, model.RoleMahasiswa)
	g.POST("/jobs/:id/apply", d.API.Apply)
	g.POST("/applications/:id/proof", d.API.SubmitProof)
}
