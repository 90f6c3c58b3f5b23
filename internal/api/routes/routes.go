package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/handlers"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/api/middleware"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/metrics"
	"github.com/Ksmashhero06/smart-data-integration-portal/internal/models"
)

func Register(e *echo.Echo, h *handlers.Handlers, jwtSecret string, m *metrics.Metrics) {
	// Public
	e.POST("/login", h.Login)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	// JWT protected; role checks are per route.
	api := e.Group("/api/v1")
	api.Use(middleware.JWTAuth(jwtSecret))

	authors := middleware.RequireRole(models.RoleFaculty, models.RoleAdmin)
	admin := middleware.RequireRole(models.RoleAdmin)
	dev := middleware.RequireRole(models.RoleDeveloper)
	ops := middleware.RequireRole(models.RoleDeveloper, models.RoleAdmin)

	api.POST("/logout", h.Logout)
	api.GET("/dashboard", h.Dashboard)

	api.POST("/reports", h.SubmitReport, authors)
	api.PUT("/reports/:id", h.UpdateReport, authors)
	api.GET("/reports/:id/certificate", h.DownloadCertificate)
	api.POST("/student-records", h.AddStudentRecord, authors)

	api.POST("/users", h.CreateUser, admin)
	api.DELETE("/users/:username", h.DeleteUser, admin)

	api.POST("/chain/attacks", h.SimulateAttack, dev)
	api.POST("/chain/snapshots", h.AnalyzeSnapshot, dev)
	api.GET("/chain/validation", h.ValidateChain, dev)
	api.GET("/chain/blocks", h.ListBlocks, dev)
	api.GET("/chain/events", h.StreamEvents, dev)
	api.GET("/chain/archives", h.ListArchives, dev)
	api.POST("/chain/rebuild", h.TriggerRebuild, ops)
}
