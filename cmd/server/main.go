package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/api"
	"github.com/versewise/versewise-server/internal/api/handler"
	"github.com/versewise/versewise-server/internal/database"
	"github.com/versewise/versewise-server/internal/pkg/billing"
	"github.com/versewise/versewise-server/internal/pkg/cron"
	"github.com/versewise/versewise-server/internal/pkg/llm"
	"github.com/versewise/versewise-server/internal/pkg/logger"
	"github.com/versewise/versewise-server/internal/pkg/oauth"
	"github.com/versewise/versewise-server/internal/pkg/pubsub"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/pkg/ws"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/service"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}
	log.Info().Msg("database connected")

	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("redis connected")

	generator, err := llm.NewGemini(ctx, cfg.LLM)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init llm client")
	}

	gateway := billing.NewStripeGateway(cfg.Stripe)
	notifyQueue := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	publisher := pubsub.NewPublisher(rdb)
	stateStore := oauth.NewStateStore(rdb)

	hub := ws.NewHub()

	// Relay entitlement changes to the owning user's live sockets. The
	// webhook may land on any replica; pub/sub fans the change out to the
	// replica actually holding the connection.
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		err := subscriber.Subscribe(ctx, func(msg *pubsub.EntitlementMessage) {
			if err := hub.SendToUser(msg.UserID, &ws.Message{Type: msg.Type, Data: msg}); err != nil {
				log.Warn().Err(err).Int64("user_id", msg.UserID).Msg("failed to push entitlement update")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("entitlement subscriber stopped")
		}
	}()

	userRepo := repository.NewUserRepository(db)

	quotaService := service.NewQuotaService(userRepo, cfg)
	entitlementService := service.NewEntitlementService(userRepo, gateway, notifyQueue, publisher, cfg)
	authService := service.NewAuthService(userRepo, stateStore, notifyQueue, cfg)
	userService := service.NewUserService(userRepo, quotaService)
	chatService := service.NewChatService(generator, quotaService)

	authHandler := handler.NewAuthHandler(authService, cfg)
	userHandler := handler.NewUserHandler(userService, quotaService)
	chatHandler := handler.NewChatHandler(chatService)
	billingHandler := handler.NewBillingHandler(entitlementService)
	webhookHandler := handler.NewWebhookHandler(gateway, entitlementService)
	websocketHandler := handler.NewWebSocketHandler(hub, cfg.JWT.Secret)

	router := api.NewRouter(
		authHandler,
		userHandler,
		chatHandler,
		billingHandler,
		webhookHandler,
		websocketHandler,
		userRepo,
		quotaService,
		cfg,
	)
	engine := router.Setup()

	cronService := cron.NewService(quotaService, userRepo, service.VerifyCodeExpireHours)
	cronService.Start()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: engine,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cronService.Stop()
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server exited")
}
