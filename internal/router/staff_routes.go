package router

import (
	"github.com/labstack/echo/v4"

	"github.com/polteknik/kompen/internal/middleware"
	"github.com/polteknik/kompen/internal/model"
)

// RegisterStaff registers the supervisor, finance and admin endpoints.
func RegisterStaff(e *echo.Echo, d Deps) {
	jobs := protected(e, d, model.RoleAdmin, model.RolePengawas)
	jobs.POST("/jobs", d.API.CreateJob)
	jobs.PUT("/jobs/:id", d.API.UpdateJob)
	jobs.PATCH("/jobs/:id/status", d.API.SetJobStatus)
	jobs.DELETE("/jobs/:id", d.API.DeleteJob)
	jobs.PATCH("/applications/:id/status", d.API.DecideApplication)

	pay := protected(e, d, model.RoleAdmin, model.RoleKeuangan, model.RoleMahasiswa)
	pay.GET("/payments", d.API.ListPayments)
	pay.POST("/payments", d.API.CreatePayment)

	fin := protected(e, d, model.RoleAdmin, model.RoleKeuangan)
	fin.PATCH("/payments/:id/status", d.API.DecidePayment)
	fin.GET("/users", d.API.ListUsers)
	fin.GET("/reports/stats", d.API.Stats, middleware.NewRedisCache(d.Cache, d.Redis))
	fin.GET("/reports/students.csv", d.API.ExportStudents)

	admin := protected(e, d, model.RoleAdmin)
	admin.POST("/users", d.API.CreateUser)
	admin.POST("/users/import", d.API.ImportUsers)
	admin.PUT("/users/:id", d.API.UpdateUser)
	admin.DELETE("/users/:id", d.API.DeleteUser)
	admin.PUT("/users/:id/hours", d.API.SetHours)
	admin.GET("/clearances", d.API.ListClearances)
	admin.PATCH("/clearances/:id/status", d.API.DecideClearance)
	admin.GET("/activity", d.API.ListActivity)
	admin.PUT("/settings/:key", d.API.SetSetting)
}
