package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/api/handlers"
	"github.com/frostdev-ops/campaign-automation/internal/api/middleware"
	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/websocket"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// MetricsExporter serves the Prometheus exposition and records HTTP metrics
type MetricsExporter interface {
	Handler() http.Handler
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

// Options are the optional parts of the admin surface
type Options struct {
	Hub     *websocket.Hub
	Metrics MetricsExporter
}

// NewRouter creates and configures the admin HTTP router
func NewRouter(cfg config.ServerConfig, deps handlers.Deps, opts Options, logger *logrus.Logger) *gin.Engine {
	switch cfg.Mode {
	case "production", gin.ReleaseMode:
		gin.SetMode(gin.ReleaseMode)
	case gin.TestMode:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger, "/health", "/metrics"))
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	if opts.Metrics != nil {
		router.Use(middleware.MetricsMiddleware(opts.Metrics))
	}
	if cfg.RateLimit > 0 {
		router.Use(middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst).RateLimitMiddleware())
	}
	router.Use(middleware.ErrorResponseMiddleware(logger))

	router.NoRoute(func(c *gin.Context) {
		utils.SendError(c, http.StatusNotFound, "endpoint not found")
	})
	router.HandleMethodNotAllowed = true
	router.NoMethod(func(c *gin.Context) {
		utils.SendError(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandlers(deps, logger)

	router.GET("/health", h.GetHealth)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	if opts.Hub != nil {
		router.GET("/ws", websocket.StreamHandler(opts.Hub))
	}

	api := router.Group("/api/v1")
	{
		api.POST("/rules/validate", h.ValidateRule)

		orgs := api.Group("/orgs/:org_id")
		{
			orgs.PUT("", h.PutOrganization)

			orgs.GET("/campaigns", h.ListCampaigns)
			orgs.PUT("/campaigns/:campaign_id", h.PutCampaign)
			orgs.PUT("/campaigns/:campaign_id/metrics/:date", h.PutDailyMetrics)

			orgs.GET("/rules/:rule_id", h.GetRule)
			orgs.PUT("/rules/:rule_id", h.PutRule)
			orgs.POST("/rules/:rule_id/run", h.RunRule)
			orgs.GET("/rules/:rule_id/executions", h.ListRuleExecutions)

			orgs.GET("/pending-actions", h.ListPendingActions)

			orgs.GET("/alerts/history", h.ListAlertHistory)
			orgs.GET("/alerts/:alert_id", h.GetAlert)
			orgs.PUT("/alerts/:alert_id", h.PutAlert)

			orgs.GET("/notifications", h.ListNotifications)
			orgs.POST("/notifications/:id/read", h.MarkNotificationRead)
		}

		pending := api.Group("/pending-actions/:id")
		{
			pending.POST("/approve", h.ApprovePendingAction)
			pending.POST("/reject", h.RejectPendingAction)
		}

		history := api.Group("/alert-history/:id")
		{
			history.POST("/acknowledge", h.AcknowledgeAlert)
			history.POST("/resolve", h.ResolveAlert)
		}

		passes := api.Group("/passes")
		{
			passes.POST("/rules", h.RunRulesPass)
			passes.POST("/alerts", h.RunAlertsPass)
		}
	}

	return router
}
