// Package api provides the JSON REST interface to the analysis
// pipeline and the clinical validation workflow.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drguilhermecapel/medai/internal/analysis"
	"github.com/drguilhermecapel/medai/internal/conf"
	"github.com/drguilhermecapel/medai/internal/datastore"
	"github.com/drguilhermecapel/medai/internal/errors"
	"github.com/drguilhermecapel/medai/internal/logging"
	"github.com/drguilhermecapel/medai/internal/notification"
)

// Controller handles API routes under /api/v2.
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Settings *conf.Settings

	pipeline      *analysis.Pipeline
	store         datastore.Interface
	notifications *notification.Service
	registry      *prometheus.Registry

	queryCache *cache.Cache
	logger     *slog.Logger
	startTime  time.Time
}

// New creates the API controller and registers all routes.
func New(settings *conf.Settings, pipeline *analysis.Pipeline, store datastore.Interface,
	notifications *notification.Service, registry *prometheus.Registry) *Controller {

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	ttl := settings.WebServer.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	c := &Controller{
		Echo:          e,
		Settings:      settings,
		pipeline:      pipeline,
		store:         store,
		notifications: notifications,
		registry:      registry,
		queryCache:    cache.New(ttl, 2*ttl),
		logger:        logging.ForService("api"),
		startTime:     time.Now(),
	}
	c.Group = e.Group("/api/v2")
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.Health)

	c.Group.POST("/analyses", c.SubmitAnalysis)
	c.Group.GET("/analyses", c.ListAnalyses)
	c.Group.GET("/analyses/:id", c.GetAnalysis)
	c.Group.POST("/analyses/:id/cancel", c.CancelAnalysis)

	c.Group.GET("/validation/:id", c.GetValidationTask)
	c.Group.POST("/validation/:id/claim", c.ClaimValidationTask)
	c.Group.POST("/validation/:id/decision", c.SubmitValidationDecision)

	c.Group.GET("/notifications", c.ListNotifications)

	if c.registry != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})))
	}
}

// Start runs the HTTP server. Blocks until the server stops.
func (c *Controller) Start() error {
	addr := ":" + c.Settings.WebServer.Port
	c.logger.Info("http server starting", slog.String("addr", addr))
	return c.Echo.Start(addr)
}

// Shutdown stops the HTTP server gracefully.
func (c *Controller) Shutdown() error {
	ctx, cancel := newShutdownContext()
	defer cancel()
	return c.Echo.Shutdown(ctx)
}

// Health reports liveness and uptime.
func (c *Controller) Health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(c.startTime).String(),
	})
}

// ListNotifications returns recent lifecycle notifications, newest
// first.
func (c *Controller) ListNotifications(ctx echo.Context) error {
	if c.notifications == nil {
		return ctx.JSON(http.StatusOK, []notification.Notification{})
	}
	return ctx.JSON(http.StatusOK, c.notifications.Recent(100))
}

// errorResponse maps a service error to a JSON problem body with the
// appropriate HTTP status.
func (c *Controller) errorResponse(ctx echo.Context, err error, fallback int) error {
	status := fallback
	switch {
	case errors.IsCategory(err, errors.CategoryNotFound):
		status = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryConflict):
		status = http.StatusConflict
	case errors.IsCategory(err, errors.CategoryInvalidWaveform):
		status = http.StatusBadRequest
	case errors.IsCategory(err, errors.CategoryState):
		status = http.StatusServiceUnavailable
	}
	return ctx.JSON(status, map[string]string{"error": err.Error()})
}
