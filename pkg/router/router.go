package router

import (
	"time"

	"fightzone/backend/internal/api"
	"fightzone/backend/internal/ws"
	"fightzone/backend/pkg/config"
	"fightzone/backend/pkg/di"
	"fightzone/backend/pkg/errors"
	"fightzone/backend/pkg/health"
	"fightzone/backend/pkg/logger"
	"fightzone/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Health    *health.Checker
	Config    *config.Config
}

// New creates a new router with the given container
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)

	cfg := config.Get()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	engine.Use(logger.Middleware(container.Logger))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())

	rateLimiter := middleware.NewRateLimiter(container.Logger)
	engine.Use(rateLimiter.Middleware())

	go container.Hub.Run()

	checker := health.NewChecker(container.Logger, 30*time.Second)
	checker.RegisterDatabaseCheck(func() error {
		return config.TestConnection(container.DB)
	})
	checker.RegisterRedisCheck(container.Redis.Ping)
	checker.Start()

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Health:    checker,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes
func (r *Router) SetupRoutes() {
	r.Engine.Use(corsMiddleware(r.Config.Security.AllowOrigin))

	jwtAuth := middleware.JWTAuthMiddleware(r.Container.JWTService, r.Container.UserService, r.Logger)

	authHandler := api.NewAuthHandler(r.Container.UserService, r.Logger)
	chatHandler := api.NewChatHandler(r.Container.MessageService, r.Logger)
	accessHandler := api.NewAccessHandler(r.Container.AccessStore, r.Container.StripeClient, r.Container.AccessCache, r.Logger)
	webhookHandler := api.NewWebhookHandler(
		r.Container.Relay,
		r.Container.StripeWebhookSecret,
		r.Config.Security.MaxBodySize,
		r.Logger,
	)

	// API version 1 routes
	v1 := r.Engine.Group("/api/v1")
	{
		v1.GET("/health", gin.WrapF(r.Health.HTTPHandler()))

		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/signup", authHandler.Signup)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.GET("/me", jwtAuth, authHandler.Me)
			authRoutes.POST("/logout", jwtAuth, authHandler.Logout)
			authRoutes.POST("/reset", authHandler.RequestPasswordReset)
			authRoutes.POST("/reset/confirm", authHandler.ResetPassword)
			authRoutes.GET("/discord", authHandler.DiscordLogin)
			authRoutes.GET("/discord/callback", authHandler.DiscordCallback)
		}

		chatRoutes := v1.Group("/chat")
		{
			// History and the poll are open so the stream page can show
			// chat before sign-in; posting requires a session
			chatRoutes.GET("/messages", chatHandler.GetMessages)
			chatRoutes.POST("/messages", jwtAuth, chatHandler.PostMessage)
		}

		v1.GET("/access/:event_id", jwtAuth, accessHandler.CheckAccess)
	}

	// Legacy paths kept for the deployed pages and the payment provider's
	// configured webhook endpoint
	r.Engine.POST("/api/webhook", webhookHandler.HandleWebhook)
	r.Engine.GET("/api/verify", webhookHandler.HandleVerify)
	r.Engine.POST("/api/checkout", jwtAuth, accessHandler.StartCheckout)

	// WebSocket route
	r.Engine.GET("/ws", jwtAuth, func(c *gin.Context) {
		ws.ServeWs(r.Container.Hub, c)
	})
}

// corsMiddleware reflects the request origin unless a fixed allow-origin
// is configured
func corsMiddleware(allowOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := allowOrigin
		if origin == "" {
			origin = c.Request.Header.Get("Origin")
		}
		if origin == "" {
			origin = "*"
		}

		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept, Accept-Encoding, Authorization, Origin, Upgrade, Connection, Cache-Control, Stripe-Signature")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Upgrade, Connection")
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
