// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/outreach-backend/internal/action"
	"github.com/unclebandit/outreach-backend/internal/config"
	"github.com/unclebandit/outreach-backend/internal/db"
	"github.com/unclebandit/outreach-backend/internal/engine"
	"github.com/unclebandit/outreach-backend/internal/lease"
	"github.com/unclebandit/outreach-backend/internal/logger"
	"github.com/unclebandit/outreach-backend/internal/mail"
	"github.com/unclebandit/outreach-backend/internal/metrics"
	"github.com/unclebandit/outreach-backend/internal/queue"
	"github.com/unclebandit/outreach-backend/internal/repository"
	"github.com/unclebandit/outreach-backend/internal/service"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Must(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server exited", logger.Error(err))
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()
	log.Info("connected to database", logger.String("host", cfg.Database.Host), logger.String("name", cfg.Database.Name))

	campaignRepo := &repository.CampaignRepository{DB: database}
	stateRepo := &repository.CampaignStateRepository{DB: database}

	events, closeEvents, err := newEventQueue(ctx, cfg, database, log)
	if err != nil {
		return err
	}
	defer closeEvents()

	engineMetrics := metrics.New()
	opts := []engine.Option{
		engine.WithLogger(log.With(logger.String("component", "engine"))),
		engine.WithPublisher(events),
		engine.WithMetrics(engineMetrics),
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
		}
		opts = append(opts, engine.WithLease(lease.NewRedisLease(rdb, cfg.Engine.LeaseTTL)))
		log.Info("campaign lease enabled", logger.String("redis", cfg.Redis.Addr))
	}

	eng := engine.New(engine.Config{
		DailyCap:  cfg.Engine.DailyCap,
		BatchSize: cfg.Engine.BatchSize,
		Window:    cfg.Engine.Window,
		MaxJitter: cfg.Engine.MaxJitter,
		LeaseTTL:  cfg.Engine.LeaseTTL,
		Topic:     cfg.AMQP.Queue,
	}, stateRepo, campaignRepo, action.NewClient(cfg.Actions), opts...)

	if _, err := eng.RecoverAll(ctx); err != nil {
		log.Error("failed to recover running campaigns", logger.Error(err))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           newRouter(cfg.Server, eng, campaignRepo, stateRepo, engineMetrics.Handler(), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server running", logger.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTTL)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown incomplete", logger.Error(err))
		}
		return eng.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newEventQueue publishes lifecycle events to RabbitMQ when configured.
// Otherwise events stay in process: they are logged, and owners are emailed
// directly when SES is configured.
func newEventQueue(ctx context.Context, cfg *config.Config, database *sql.DB, log logger.Logger) (queue.Queue, func(), error) {
	if cfg.AMQP.URL != "" {
		q, err := queue.DialAMQP(cfg.AMQP.URL, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info("publishing campaign events to rabbitmq", logger.String("queue", cfg.AMQP.Queue))
		return q, func() { q.Close() }, nil
	}

	q := queue.NewInMemoryQueue(log)
	if err := queue.StartCampaignEventLogger(q, cfg.AMQP.Queue, log); err != nil {
		return nil, nil, err
	}
	if cfg.SES.From != "" {
		sender, err := mail.NewSESSender(ctx, cfg.SES)
		if err != nil {
			return nil, nil, err
		}
		worker := service.NewNotificationWorker(&repository.OwnerRepository{DB: database}, sender.Send, log)
		err = q.Subscribe(cfg.AMQP.Queue, func(payload any) error {
			evt, err := queue.DecodeEvent(payload)
			if err != nil {
				return nil
			}
			return worker.Handle(context.Background(), evt)
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return q, q.Wait, nil
}
