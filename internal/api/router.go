package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/api/handler"
	"github.com/versewise/versewise-server/internal/api/middleware"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	chatHandler      *handler.ChatHandler
	billingHandler   *handler.BillingHandler
	webhookHandler   *handler.WebhookHandler
	websocketHandler *handler.WebSocketHandler
	userRepo         *repository.UserRepository
	quotaService     *service.QuotaService
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	billingHandler *handler.BillingHandler,
	webhookHandler *handler.WebhookHandler,
	websocketHandler *handler.WebSocketHandler,
	userRepo *repository.UserRepository,
	quotaService *service.QuotaService,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		chatHandler:      chatHandler,
		billingHandler:   billingHandler,
		webhookHandler:   webhookHandler,
		websocketHandler: websocketHandler,
		userRepo:         userRepo,
		quotaService:     quotaService,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/healthz", handler.Healthz)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	{
		// WebSocket (token-authenticated via query parameter)
		api.GET("/ws", r.websocketHandler.Handle)

		// Public: authentication
		auth := api.Group("/auth")
		{
			auth.POST("/register", r.authHandler.Register)
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/verify-email", r.authHandler.VerifyEmail)
			auth.GET("/google", r.authHandler.GoogleAuth)
			auth.GET("/google/callback", r.authHandler.GoogleCallback)
		}

		// Public: provider-signed webhook deliveries
		api.POST("/billing/webhook", r.webhookHandler.Handle)

		// Authenticated
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			user := authenticated.Group("/user")
			{
				user.GET("/me", r.userHandler.Me)
				user.PUT("/profile", r.userHandler.UpdateProfile)
				user.DELETE("/account", r.userHandler.DeleteAccount)
				user.GET("/quota", r.userHandler.GetQuota)
			}

			billing := authenticated.Group("/billing")
			{
				billing.POST("/checkout", r.billingHandler.CreateCheckout)
				billing.POST("/portal", r.billingHandler.CreatePortal)
				billing.POST("/verify-checkout", r.billingHandler.VerifyCheckout)
				billing.POST("/sync", r.billingHandler.SyncSubscription)
				billing.POST("/cancel", r.billingHandler.CancelSubscription)
				billing.POST("/resume", r.billingHandler.ResumeSubscription)
			}

			// Metered: premium admission on top of authentication
			chat := authenticated.Group("/chat")
			chat.Use(middleware.RequirePremium(r.userRepo, r.quotaService))
			{
				chat.POST("/ask", r.chatHandler.Ask)
				chat.POST("/stream", r.chatHandler.Stream)
			}
		}
	}

	return engine
}
