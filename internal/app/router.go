package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"delivery/internal/handler"
	"delivery/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	OrderHandler     *handler.OrderHandler
	PaymentHandler   *handler.PaymentHandler
	TrackingHandler  *handler.TrackingHandler
	IdempotencyStore middleware.IdempotencyStore
	NewRelicApp      *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.MetricsMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The gateway authenticates webhooks by signature, not by actor headers.
	router.POST("/v1/payments/webhook", deps.PaymentHandler.Webhook)

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.ActorMiddleware())
	v1.Use(middleware.IdempotencyMiddleware(deps.IdempotencyStore))
	{
		// Order routes.
		orders := v1.Group("/orders")
		{
			orders.POST("", deps.OrderHandler.CreateOrder)
			orders.GET("/:id", deps.OrderHandler.GetOrder)
			orders.POST("/:id/transitions", deps.OrderHandler.Transition)
			orders.GET("/:id/transitions/allowed", deps.OrderHandler.AllowedTransitions)
			orders.POST("/:id/rider", deps.OrderHandler.AssignRider)
			orders.GET("/:id/history", deps.OrderHandler.History)
			orders.POST("/:id/payment", deps.PaymentHandler.InitializePayment)
		}

		// Payment routes.
		payments := v1.Group("/payments")
		{
			payments.GET("/:reference/verify", deps.PaymentHandler.VerifyPayment)
		}

		// Rider routes.
		riders := v1.Group("/riders")
		{
			riders.GET("/nearby", deps.TrackingHandler.NearbyRiders)
			riders.POST("/:id/location", deps.TrackingHandler.PushLocation)
			riders.GET("/:id/location/stream", deps.TrackingHandler.StreamLocation)
			riders.DELETE("/:id/tracking", deps.TrackingHandler.StopTracking)
		}

		// Live tracking routes.
		live := v1.Group("/tracking")
		{
			live.GET("/sessions", deps.TrackingHandler.Sessions)
			live.GET("/riders/:id/ws", deps.TrackingHandler.SubscribeRider)
			live.GET("/orders/:id/ws", deps.TrackingHandler.SubscribeOrder)
			live.GET("/live/ws", deps.TrackingHandler.SubscribeLive)
		}
	}

	return router
}
