package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/httpx"
	"github.com/ariefcatur/go-marketplace-orders/internal/identity"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/logging"
	"github.com/ariefcatur/go-marketplace-orders/internal/notify"
	"github.com/ariefcatur/go-marketplace-orders/internal/observability"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/rabbitmq"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.ServiceName)
	defer func() { _ = logger.Sync() }()

	if err := errors.Join(cfg.Validate(), cfg.ValidateAuth()); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		ServiceName: cfg.ServiceName,
		Endpoint:    cfg.OtelEndpoint,
		AuthHeader:  cfg.OtelAuthHeader,
	})
	if err != nil {
		logger.Fatal("tracing setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	if cfg.MigrateOnStart {
		if err := postgres.Migrate(ctx, db); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Notifications
	sink, closeSink, err := notificationSink(ctx, cfg, db, logger)
	if err != nil {
		logger.Fatal("notification transport", zap.String("transport", cfg.NotifyTransport), zap.Error(err))
	}
	dispatcher := notify.NewDispatcher(sink, cfg.NotifyBuffer, logger.Named("notify"))
	dispatcher.Start(ctx)

	// Engine
	svc, err := orders.NewService(orders.ServiceDeps{
		Orders:      &orders.Repo{DB: db},
		Catalog:     &catalog.Repo{DB: db},
		UnitOfWork:  postgres.NewTxRunner(db, logger.Named("tx")),
		Notifier:    dispatcher,
		StatusCache: &redisx.StatusCache{Client: rdb},
		Idempotency: &redisx.IdempotencyIndex{Client: rdb},
		Logger:      logger.Named("orders"),
	})
	if err != nil {
		logger.Fatal("order service", zap.Error(err))
	}

	resolver, err := identity.NewJWTResolver(cfg.JWTSecret, identity.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		logger.Fatal("token resolver", zap.Error(err))
	}

	router := httpx.NewRouter(cfg.RequestTimeout)
	(&httpx.ProductsHandler{Catalog: &catalog.Repo{DB: db}, Logger: logger}).Register(router)
	router.Group(func(r chi.Router) {
		r.Use(identity.RequireUser(resolver))
		(&httpx.OrdersHandler{Service: svc, Logger: logger}).Register(r)
		(&httpx.NotificationsHandler{Store: &notify.Store{DB: db}, Logger: logger}).Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("notify_transport", cfg.NotifyTransport))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	dispatcher.Close() // stop accepting, drain the queue
	dispatcher.WaitClosed()
	if err := closeSink.Close(); err != nil {
		logger.Warn("notification transport close", zap.Error(err))
	}
	cancel()
	if err := shutdownTracing(ctx2); err != nil {
		logger.Warn("tracing shutdown", zap.Error(err))
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// notificationSink picks where emitted notifications go. With a broker the
// notifier binary persists them; "direct" writes straight to Postgres.
func notificationSink(ctx context.Context, cfg config.Config, db postgres.DBTX, logger *zap.Logger) (notify.Sink, io.Closer, error) {
	switch cfg.NotifyTransport {
	case config.TransportKafka:
		prod := kafkax.NewProducer(cfg.KafkaBrokers, cfg.NotifyTopic,
			kafkago.Header{Key: "x-event-type", Value: []byte(notify.EventNotificationRequested)},
			kafkago.Header{Key: "x-event-version", Value: []byte("1")},
		)
		return &notify.BrokerSink{Publisher: prod, Producer: cfg.ServiceName}, prod, nil
	case config.TransportAMQP:
		conn, err := rabbitmq.Dial(ctx, cfg.AMQPURL, logger)
		if err != nil {
			return nil, nil, err
		}
		pub, err := rabbitmq.NewPublisher(conn, cfg.AMQPQueue, amqp.Table{
			"x-event-type":    notify.EventNotificationRequested,
			"x-event-version": int32(notify.EventVersion),
		})
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return &notify.BrokerSink{Publisher: pub, Producer: cfg.ServiceName}, closers{pub, conn}, nil
	default:
		return &notify.Store{DB: db}, nopCloser{}, nil
	}
}

type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for _, c := range cs {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
