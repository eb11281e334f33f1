package router

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yashwanths814/vital-sub001/handlers"
	"github.com/yashwanths814/vital-sub001/internal/metrics"
	"github.com/yashwanths814/vital-sub001/services"
)

func NewGinRouter(engine *services.EscalationEngine, collector *metrics.Collector, auth *handlers.AuthMiddleware) *gin.Engine {
	r := gin.Default()

	// CORS for the web client
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Request-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Request IDs
	r.Use(func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)
		c.Next()
	})

	escalationHandler := handlers.NewEscalationHandler(engine)

	// PUBLIC ENDPOINTS
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(collector.Handler()))

	api := r.Group("/api")

	requireAuth := func(c *gin.Context) { c.Next() }
	optionalAuth := requireAuth
	if auth != nil && auth.Enabled() {
		requireAuth = auth.RequireAuth()
		optionalAuth = auth.OptionalAuth()
	} else {
		log.Println("WARNING: auth.jwt_secret not set, escalation endpoints are unauthenticated")
	}

	// Auto-escalation is also triggered by schedulers without a user identity
	api.POST("/evaluate-auto-escalation", optionalAuth, escalationHandler.EvaluateAutoEscalation)
	api.POST("/request-manual-escalation", requireAuth, escalationHandler.RequestManualEscalation)

	escalations := api.Group("/escalations")
	{
		escalations.POST("/evaluate-auto", optionalAuth, escalationHandler.EvaluateAutoEscalation)
		escalations.POST("/request-manual", requireAuth, escalationHandler.RequestManualEscalation)
	}

	api.GET("/issues/:id/escalation", optionalAuth, escalationHandler.GetEscalation)

	return r
}
