// cmd/worker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/mail"
	"github.com/unclebandit/outreach-backend/internal/model"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

// The worker consumes campaign lifecycle events from RabbitMQ and emails
// campaign owners.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	defer log.Sync()

	if cfg.AMQP.URL == "" {
		log.Fatal("AMQP_URL is required for the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", logger.Error(err))
	}
	defer database.Close()

	sender, err := mail.NewSESSender(ctx, cfg.SES)
	if err != nil {
		log.Fatal("failed to create ses sender", logger.Error(err))
	}

	q, err := queue.DialAMQP(cfg.AMQP.URL, log)
	if err != nil {
		log.Fatal("failed to connect to rabbitmq", logger.Error(err))
	}
	defer q.Close()

	worker := service.NewNotificationWorker(&repository.OwnerRepository{DB: database}, sender.Send, log)
	if err := q.Subscribe(cfg.AMQP.Queue, eventHandler(ctx, worker, log)); err != nil {
		log.Fatal("failed to register consumer", logger.Error(err))
	}

	log.Info("worker running, waiting for campaign events", logger.String("queue", cfg.AMQP.Queue))
	<-ctx.Done()
	log.Info("worker stopped")
}

type eventWorker interface {
	Handle(ctx context.Context, evt model.CampaignEvent) error
}

// eventHandler acks malformed bodies so they are not redelivered forever.
func eventHandler(ctx context.Context, w eventWorker, log logger.Logger) func(payload any) error {
	return func(payload any) error {
		evt, err := queue.DecodeEvent(payload)
		if err != nil {
			log.Warn("invalid campaign event", logger.Error(err))
			return nil
		}
		return w.Handle(ctx, evt)
	}
}
