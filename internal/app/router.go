package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"go.uber.org/zap"

	"ridehail/internal/handler"
	"ridehail/internal/middleware"
	"ridehail/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	UserHandler   *handler.UserHandler
	AdminHandler  *handler.AdminHandler
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter      // nil disables rate limiting
	ResponseCache redis.ResponseCacheInterface // nil disables idempotent replay
	NewRelicApp   *newrelic.Application        // nil disables APM
	Logger        *zap.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	if deps.Logger != nil {
		router.Use(middleware.RequestLogger(deps.Logger))
	}
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limit := func(c *gin.Context) { c.Next() }
	if deps.RateLimiter != nil {
		limit = middleware.RateLimit(deps.RateLimiter)
	}

	// Unauthenticated routes.
	public := router.Group("/v1", limit)
	{
		public.POST("/users/register", deps.UserHandler.Register)
		public.POST("/fares/estimate", deps.RideHandler.EstimateFare)
	}

	v1 := router.Group("/v1",
		middleware.Auth(deps.Authenticator),
		limit,
		middleware.Idempotency(deps.ResponseCache),
	)
	{
		users := v1.Group("/users")
		{
			users.GET("", deps.UserHandler.GetAll)
			users.GET("/:id", deps.UserHandler.GetUser)
			users.POST("/:id/block", deps.UserHandler.Block)
		}

		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.BookRide)
			rides.POST("/scheduled", deps.RideHandler.ScheduleRide)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/payment", deps.RideHandler.SettleRide)
			rides.POST("/:id/rating", deps.RideHandler.RateRide)
			rides.GET("/:id/receipt", deps.RideHandler.GetReceipt)
		}

		v1.GET("/passengers/:id/rides", deps.RideHandler.History)

		drivers := v1.Group("/drivers")
		{
			drivers.GET("", deps.DriverHandler.GetAll)
			drivers.GET("/nearby", deps.DriverHandler.Nearby)
			drivers.PUT("/me/location", deps.DriverHandler.UpdateLocation)
			drivers.PUT("/:id/availability", deps.DriverHandler.SetAvailability)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/reports/summary", deps.AdminHandler.Summary)
			admin.GET("/reports/peak-hours", deps.AdminHandler.PeakHours)
			admin.GET("/audit-logs", deps.AdminHandler.AuditLogs)
		}
	}

	return router
}
