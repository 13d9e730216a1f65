// Package api exposes the HTTP surface: poll trigger, webhook intake,
// alert rule administration, and read paths for the dashboard.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kwestby/ciwatch/internal/datastore/repository"
	"github.com/kwestby/ciwatch/internal/ingest"
	"github.com/kwestby/ciwatch/internal/logger"
)

// Controller wires HTTP routes to the ingestion pipeline and repositories.
type Controller struct {
	pipeline      *ingest.Pipeline
	runRepo       repository.RunRepository
	alertRuleRepo repository.AlertRuleRepository
	webhookSecret string
	log           logger.Logger
}

// NewController creates the API controller.
func NewController(pipeline *ingest.Pipeline, runRepo repository.RunRepository, alertRuleRepo repository.AlertRuleRepository, webhookSecret string, log logger.Logger) *Controller {
	return &Controller{
		pipeline:      pipeline,
		runRepo:       runRepo,
		alertRuleRepo: alertRuleRepo,
		webhookSecret: webhookSecret,
		log:           log,
	}
}

// RegisterRoutes attaches all routes to the echo instance.
func (c *Controller) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.Recover())

	e.GET("/healthz", c.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := e.Group("/api/v1")
	v1.POST("/webhook", c.WebhookIntake)
	v1.POST("/repos/:owner/:repo/sync", c.TriggerSync)
	v1.GET("/repos/:owner/:repo/runs", c.ListRuns)

	alerts := v1.Group("/alerts")
	alerts.GET("/rules", c.ListAlertRules)
	alerts.POST("/rules", c.CreateAlertRule)
	alerts.GET("/rules/:id", c.GetAlertRule)
	alerts.PUT("/rules/:id", c.UpdateAlertRule)
	alerts.PATCH("/rules/:id/toggle", c.ToggleAlertRule)
	alerts.DELETE("/rules/:id", c.DeleteAlertRule)
	alerts.GET("/events", c.ListAlertEvents)
}

// Health reports liveness.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleError logs the internal error and returns a sanitized message to
// the caller. Raw upstream or store error text never reaches the response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	c.log.Error(message, logger.Error(err))
	return ctx.JSON(code, map[string]string{"error": message})
}

// repoParam joins the owner and repo route parameters into a repository key.
func repoParam(ctx echo.Context) string {
	owner := ctx.Param("owner")
	repo := ctx.Param("repo")
	if owner == "" || repo == "" {
		return ""
	}
	return owner + "/" + repo
}
