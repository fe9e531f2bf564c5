package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/rabbitmq"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
)

// notifier drains the notification topic (or queue) into the Postgres log.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	name := cfg.ServiceName + "-notifier"
	logger := logging.New(cfg.LogLevel, name)
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.NotifyTransport == config.TransportDirect {
		logger.Fatal("notifier has nothing to consume with the direct transport")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: name,
		Endpoint:    cfg.OtelEndpoint,
		AuthHeader:  cfg.OtelAuthHeader,
	})
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	persister := &notify.Persister{
		Sink:   &notify.Store{DB: db},
		Dedup:  &redisx.Deduper{Client: rdb, Service: "notifier"},
		Logger: logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	switch cfg.NotifyTransport {
	case config.TransportKafka:
		cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.NotifierGroup,
			Topic:   cfg.NotifyTopic,
			Workers: cfg.NotifierWorkers,
		}, logger.Named("kafka"))
		g.Go(func() error {
			logger.Info("consumer started",
				zap.String("group", cfg.NotifierGroup),
				zap.String("topic", cfg.NotifyTopic),
				zap.Int("workers", cfg.NotifierWorkers))
			return cons.Start(gctx, func(ctx context.Context, m kafkago.Message) error {
				return persister.Handle(ctx, m.Value)
			})
		})
	case config.TransportAMQP:
		conn, err := rabbitmq.Dial(ctx, cfg.AMQPURL, logger)
		if err != nil {
			logger.Fatal("amqp dial", zap.Error(err))
		}
		defer conn.Close()
		cons, err := rabbitmq.NewConsumer(conn, cfg.AMQPQueue, cfg.NotifierWorkers, logger.Named("amqp"))
		if err != nil {
			logger.Fatal("amqp consumer", zap.Error(err))
		}
		g.Go(func() error {
			logger.Info("consumer started", zap.String("queue", cfg.AMQPQueue))
			return cons.Start(gctx, persister.Handle)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer exit", zap.Error(err))
	}
	logger.Info("notifier stopped")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}
