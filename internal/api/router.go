// Package api wires the HTTP routes onto the mux.
package api

import (
	httpSwagger "github.com/swaggo/http-swagger"

	"etl-pipeline-manager/internal/api/handler"
	"etl-pipeline-manager/internal/manager"
	"etl-pipeline-manager/pkg/router"
)

// NewRouter builds the full route table over the manager facade
func NewRouter(m *manager.Manager) *router.Router {
	r := router.New()
	h := handler.New(m)

	r.POST("/api/v1/jobs", h.CreateJob)
	r.GET("/api/v1/jobs", h.ListJobs)
	// More specific routes first
	r.GET("/api/v1/jobs/*/runs", h.GetJobRuns)
	r.POST("/api/v1/jobs/*/execute", h.ExecuteJob)
	r.POST("/api/v1/jobs/*/cancel", h.CancelJob)
	r.POST("/api/v1/jobs/*/schedule", h.ScheduleJob)
	r.POST("/api/v1/jobs/*/unschedule", h.UnscheduleJob)
	r.POST("/api/v1/jobs/*/enable", h.EnableJob)
	r.POST("/api/v1/jobs/*/disable", h.DisableJob)
	// Generic job routes last
	r.GET("/api/v1/jobs/*", h.GetJob)
	r.PUT("/api/v1/jobs/*", h.UpdateJob)
	r.DELETE("/api/v1/jobs/*", h.DeleteJob)

	r.POST("/api/v1/sources", h.CreateDataSource)
	r.GET("/api/v1/sources", h.ListDataSources)
	r.POST("/api/v1/sources/*/test", h.TestDataSource)
	r.POST("/api/v1/sources/*/enable", h.EnableDataSource)
	r.POST("/api/v1/sources/*/disable", h.DisableDataSource)
	r.GET("/api/v1/sources/*", h.GetDataSource)
	r.PUT("/api/v1/sources/*", h.UpdateDataSource)
	r.DELETE("/api/v1/sources/*", h.DeleteDataSource)

	r.POST("/api/v1/rules", h.CreateRule)
	r.GET("/api/v1/rules", h.ListRules)
	r.POST("/api/v1/rules/*/enable", h.EnableRule)
	r.POST("/api/v1/rules/*/disable", h.DisableRule)
	r.GET("/api/v1/rules/*", h.GetRule)
	r.PUT("/api/v1/rules/*", h.UpdateRule)
	r.DELETE("/api/v1/rules/*", h.DeleteRule)

	r.GET("/api/v1/runs", h.ListRuns)
	r.GET("/api/v1/runs/*", h.GetRun)

	r.GET("/api/v1/alerts", h.ListAlerts)
	r.POST("/api/v1/alerts/*/acknowledge", h.AcknowledgeAlert)
	r.POST("/api/v1/alerts/*/resolve", h.ResolveAlert)
	r.POST("/api/v1/alerts/*/silence", h.SilenceAlert)

	r.GET("/api/v1/health", h.Health)

	r.Mount("/swagger/*", httpSwagger.WrapHandler)

	return r
}
