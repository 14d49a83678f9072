package router

import (
	"time"

	"companion-chat/backend/internal/api"
	"companion-chat/backend/internal/ws"
	"companion-chat/backend/pkg/di"
	"companion-chat/backend/pkg/errors"
	"companion-chat/backend/pkg/logger"
	"companion-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Track server start time for uptime calculations
var startTime = time.Now()

// Router is the HTTP surface of the service
type Router struct {
	Engine      *gin.Engine
	Container   *di.Container
	Logger      *logger.Logger
	Hub         *ws.Hub
	RateLimiter *middleware.RateLimiter
}

// New builds the engine with its middleware chain. Call SetupRoutes afterwards.
func New(container *di.Container) (*Router, error) {
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Logger first so every later middleware can use the request logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(middleware.CORS(cfg.Security.AllowedOrigins))

	limiter := middleware.NewRateLimiter(container.Logger, middleware.RateLimiterOptions{
		Limit:          rate.Limit(cfg.Security.RateLimit),
		Burst:          cfg.Security.RateLimitBurst,
		ExpiryDuration: time.Hour,
		SweepInterval:  time.Minute,
		KeyFunc:        middleware.ClientIPKey,
	})

	r := &Router{
		Engine:      engine,
		Container:   container,
		Logger:      container.Logger,
		Hub:         ws.NewHub(container.ConversationService, container.Logger, cfg.Security.AllowedOrigins),
		RateLimiter: limiter,
	}

	if err := r.addOpenAPIValidation(cfg.Server.OpenAPISchema); err != nil {
		limiter.Stop()
		return nil, err
	}
	return r, nil
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.setupHealthRoutes()

	v2 := r.Engine.Group("/api/v2")
	v2.Use(r.RateLimiter.Middleware())

	api.NewCharacterController(r.Container.CharacterService).RegisterRoutes(v2)
	api.NewConversationController(r.Container.ConversationService).RegisterRoutes(v2)
	api.NewGatewayController(r.Container.Gateway).RegisterRoutes(v2)

	r.Engine.GET("/ws", r.Hub.ServeWs)
}

// Close stops background work started by the router
func (r *Router) Close() {
	r.RateLimiter.Stop()
	r.Hub.Close()
}
