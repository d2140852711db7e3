package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"delivery/internal/app"
	"delivery/internal/config"
	"delivery/internal/domain"
	"delivery/internal/events"
	"delivery/internal/handler"
	"delivery/internal/hub"
	"delivery/internal/kafka"
	"delivery/internal/logging"
	"delivery/internal/middleware"
	"delivery/internal/payment"
	"delivery/internal/rabbit"
	internalRedis "delivery/internal/redis"
	"delivery/internal/repository"
	mongorepo "delivery/internal/repository/mongo"
	"delivery/internal/repository/postgres"
	"delivery/internal/service"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log.Level)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}

// backends holds the connections opened at startup. Optional ones are nil
// when not configured.
type backends struct {
	db     *sql.DB
	redis  *redis.Client
	audit  repository.AuditRepository
	rabbit *app.RabbitConnection
	nrApp  *newrelic.Application
	close  []func()
}

func (b *backends) shutdown() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	b, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.shutdown()

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server, workers, err := wireServer(runCtx, b, cfg, logger)
	if err != nil {
		return err
	}

	// Start server in goroutine.
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-runCtx.Done():
		logger.Info("shutting down server")
	case err := <-serverErr:
		if err != nil {
			stop()
			workers.Wait()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	err = server.Shutdown(shutdownCtx)
	stop()
	workers.Wait()
	return err
}

// connect opens New Relic first so the database and Redis clients can be
// instrumented, then every configured backend.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.NewRelic.Enabled {
		nrApp, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logger.Warn("failed to initialize new relic", "error", err)
		} else {
			b.nrApp = nrApp
			b.close = append(b.close, func() { nrApp.Shutdown(5 * time.Second) })
			logger.Info("new relic enabled", "app", cfg.NewRelic.AppName)
		}
	}

	db, err := app.NewDatabase(ctx, cfg.Database, b.nrApp)
	if err != nil {
		b.shutdown()
		return nil, err
	}
	b.db = db
	b.close = append(b.close, func() { db.Close() })
	logger.Info("connected to postgres")

	if cfg.Database.RunMigrations {
		if err := app.Migrate(ctx, db); err != nil {
			b.shutdown()
			return nil, err
		}
		logger.Info("migrations applied")
	}

	if cfg.Redis.Addr != "" {
		client, err := app.NewRedisClient(ctx, cfg.Redis, b.nrApp)
		if err != nil {
			b.shutdown()
			return nil, err
		}
		b.redis = client
		b.close = append(b.close, func() { client.Close() })
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	if cfg.Mongo.URI != "" {
		client, mdb, err := app.NewMongoDatabase(ctx, cfg.Mongo)
		if err != nil {
			b.shutdown()
			return nil, err
		}
		b.close = append(b.close, func() { _ = client.Disconnect(context.Background()) })
		audit := mongorepo.NewAuditRepository(mdb)
		if err := audit.EnsureIndexes(ctx); err != nil {
			logger.Warn("failed to ensure audit indexes", "error", err)
		}
		b.audit = audit
		logger.Info("connected to mongo", "database", cfg.Mongo.Database)
	}

	if cfg.Rabbit.URL != "" {
		conn, err := app.NewRabbitConnection(cfg.Rabbit)
		if err != nil {
			b.shutdown()
			return nil, err
		}
		b.rabbit = conn
		b.close = append(b.close, func() { conn.Close() })
		logger.Info("connected to rabbitmq")
	}

	return b, nil
}

// wireServer wires all dependencies, starts the background workers on ctx and
// returns the HTTP server.
func wireServer(ctx context.Context, b *backends, cfg *config.Config, logger *slog.Logger) (*http.Server, *sync.WaitGroup, error) {
	var workers sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("worker stopped", "worker", name, "error", err)
			}
		}()
	}

	// Initialize repositories.
	orderRepo := postgres.NewOrderRepository(b.db)
	riderRepo := postgres.NewRiderRepository(b.db)
	paymentRepo := postgres.NewPaymentRepository(b.db)

	// Initialize Redis stores.
	var (
		locations   internalRedis.LocationIndexInterface
		riderCache  internalRedis.RiderCacheInterface
		idempotency middleware.IdempotencyStore
		relay       *internalRedis.Relay
	)
	if b.redis != nil {
		locations = internalRedis.NewLocationStore(b.redis)
		riderCache = internalRedis.NewCacheStore(b.redis)
		idempotency = b.redis
	}

	// The stop hook needs the rider service, which needs the hub.
	var riderService *service.RiderService
	hubOpts := []hub.Option{
		hub.WithLogger(logger),
		hub.WithDirectory(service.NewRiderDirectory(riderRepo, riderCache)),
		hub.WithOrderLookup(orderRepo),
		hub.WithInactivityWindow(cfg.Tracking.InactivityWindow),
		hub.WithSubscriberBuffer(cfg.Tracking.SubscriberBuffer),
		hub.WithStopHook(func(riderID string, _ domain.StopReason) {
			offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			riderService.GoOffline(offCtx, riderID)
		}),
	}
	if b.redis != nil && cfg.Tracking.RelayEnabled {
		instanceID := uuid.NewString()
		relay = internalRedis.NewRelay(b.redis, instanceID, logger)
		hubOpts = append(hubOpts, hub.WithInstanceID(instanceID), hub.WithRelay(relay))
	}
	trackingHub := hub.New(hubOpts...)
	logger.Info("tracking hub ready",
		"instance", trackingHub.InstanceID(),
		"inactivity_window", trackingHub.InactivityWindow(),
	)
	riderService = service.NewRiderService(trackingHub, locations, riderCache, riderRepo, logger)

	// Order events: in-process to the hub, and out to the broker when configured.
	dispatcher := events.NewDispatcher(logger)
	dispatcher.Subscribe(trackingHub.OnOrderTransitioned)
	publisher := events.Fanout{dispatcher}
	if b.rabbit != nil {
		pubCh, err := b.rabbit.Channel()
		if err != nil {
			return nil, nil, err
		}
		rabbitPublisher, err := rabbit.NewPublisher(pubCh, cfg.Rabbit.Exchange)
		if err != nil {
			return nil, nil, err
		}
		publisher = append(publisher, rabbitPublisher)

		subCh, err := b.rabbit.Channel()
		if err != nil {
			return nil, nil, err
		}
		consumer := rabbit.NewConsumer(subCh, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, trackingHub.OnOrderTransitioned, logger)
		spawn("rabbit-consumer", consumer.Run)
	}

	// Initialize services.
	orderService := service.NewOrderService(service.OrderServiceDeps{
		Orders:    orderRepo,
		Riders:    riderRepo,
		Audit:     b.audit,
		Publisher: publisher,
		Logger:    logger,
	})

	var gateway service.Gateway
	if cfg.Stripe.SecretKey != "" {
		gateway = payment.NewStripeGateway(payment.StripeConfig{
			SecretKey:     cfg.Stripe.SecretKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			SuccessURL:    cfg.Stripe.SuccessURL,
			CancelURL:     cfg.Stripe.CancelURL,
		})
	}
	paymentService := service.NewPaymentService(orderRepo, paymentRepo, orderService, gateway, logger)

	// Background workers.
	spawn("hub", trackingHub.Run)
	if relay != nil {
		spawn("relay", func(ctx context.Context) error {
			return relay.Listen(ctx, trackingHub.DeliverRemote)
		})
	}
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, riderService, logger)
		spawn("kafka-consumer", func(ctx context.Context) error {
			defer consumer.Close()
			return consumer.Run(ctx)
		})
	}

	// Initialize handlers.
	orderHandler := handler.NewOrderHandler(orderService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	trackingHandler := handler.NewTrackingHandler(riderService, trackingHub, logger)

	// Create router.
	router := app.NewRouter(app.RouterDeps{
		OrderHandler:     orderHandler,
		PaymentHandler:   paymentHandler,
		TrackingHandler:  trackingHandler,
		IdempotencyStore: idempotency,
		NewRelicApp:      b.nrApp,
	})

	// Create HTTP server.
	return &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, &workers, nil
}
