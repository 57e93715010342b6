package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/versewise/versewise-server/config"
	"github.com/versewise/versewise-server/internal/database"
	"github.com/versewise/versewise-server/internal/pkg/email"
	"github.com/versewise/versewise-server/internal/pkg/logger"
	"github.com/versewise/versewise-server/internal/pkg/queue"
	"github.com/versewise/versewise-server/internal/repository"
	"github.com/versewise/versewise-server/internal/worker"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	logger.Init(cfg.Log)

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

	notifyQueue := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	userRepo := repository.NewUserRepository(db)
	emailService := email.NewService(&cfg.Email)

	processor := worker.NewProcessor(userRepo, emailService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("received shutdown signal")
		cancel()
	}()

	maxWorkers := cfg.Queue.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	log.Info().Int("workers", maxWorkers).Msg("notification worker started")

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					log.Info().Int("worker", workerID).Msg("worker shutting down")
					return
				default:
					msg, err := notifyQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Error().Err(err).Int("worker", workerID).Msg("failed to pop notification")
						continue
					}

					if msg == nil {
						continue // timeout, keep waiting
					}

					if err := processor.Process(ctx, msg); err != nil {
						log.Error().
							Err(err).
							Int("worker", workerID).
							Str("message_id", msg.ID).
							Str("kind", msg.Kind).
							Msg("notification delivery failed, dropped")
					}
				}
			}
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	log.Info().Msg("worker shutdown complete")
}
