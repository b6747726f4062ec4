package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rms/order-service/internal/broker/kafka"
	"rms/order-service/internal/broker/rabbitmq"
	"rms/order-service/internal/catalog"
	"rms/order-service/internal/config"
	"rms/order-service/internal/events"
	"rms/order-service/internal/httpapi"
	"rms/order-service/internal/hub"
	"rms/order-service/internal/logging"
	"rms/order-service/internal/metrics"
	"rms/order-service/internal/numbering"
	"rms/order-service/internal/orders"
	"rms/order-service/internal/store"
	"rms/order-service/internal/store/memory"
	"rms/order-service/internal/store/postgres"
	"rms/order-service/internal/telemetry"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const serviceName = "order-service"

func main() {
	app := &cli.App{
		Name:   serviceName,
		Usage:  "restaurant order management API with realtime kitchen updates",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and realtime endpoint",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrate,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DB_DSN is required")
	}
	return postgres.Migrate(cfg.DatabaseURL)
}

type backend struct {
	store   store.OrderStore
	menu    catalog.Source
	numbers numbering.Source
	close   func()
}

func serve(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	shutdownTelemetry := telemetry.Setup(serviceName, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.close()

	menu := be.menu
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		menu = catalog.NewCached(menu, client, cfg.MenuCacheTTL, logger)
	}

	h := hub.New(logger)
	expvar.Publish("realtime_clients", expvar.Func(func() any { return h.Count() }))

	sinks, err := openSinks(cfg)
	if err != nil {
		return err
	}
	m := metrics.New()
	fanout := events.NewFanout(h, logger, append(sinks, m.EventSink())...)
	defer func() {
		if err := fanout.Close(); err != nil {
			logger.Warn("close event sinks", zap.Error(err))
		}
	}()

	service := orders.NewService(be.store, menu, be.numbers, fanout, orders.Options{Logger: logger})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: newHTTPHandler(routerDeps{
			service:      service,
			hub:          h,
			metrics:      m,
			clientBuffer: cfg.ClientBuffer,
			limits: httpapi.RateLimitConfig{
				IPPerMinute:   cfg.RateLimitPerMin,
				IPBurst:       cfg.RateLimitBurst,
				UserPerMinute: cfg.UserRateLimit,
				UserBurst:     cfg.UserRateBurst,
			},
			logger: logger,
		}),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening",
			zap.String("addr", server.Addr),
			zap.String("store", cfg.StoreDriver),
			zap.String("broker", cfg.EventBroker),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	if cfg.StoreDriver == config.StoreMemory {
		menu := catalog.NewStatic()
		if cfg.MenuFile != "" {
			loaded, err := catalog.LoadStatic(cfg.MenuFile)
			if err != nil {
				return backend{}, err
			}
			menu = loaded
		}
		logger.Warn("using in-memory order store; data is lost on restart")
		return backend{
			store:   memory.NewStore(),
			menu:    menu,
			numbers: numbering.NewDaily(nil),
			close:   func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return backend{}, fmt.Errorf("db connect: %w", err)
	}
	pgStore := postgres.NewStore(pool, postgres.Options{})

	var numbers numbering.Source = numbering.NewSequence(pgStore, nil)
	if cfg.OrderNumberSource == config.NumbersMemory {
		numbers = numbering.NewDaily(nil)
	}
	return backend{store: pgStore, menu: pgStore, numbers: numbers, close: pool.Close}, nil
}

func openSinks(cfg config.Config) ([]events.Sink, error) {
	switch cfg.EventBroker {
	case config.BrokerKafka:
		sink, err := kafka.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return []events.Sink{sink}, nil
	case config.BrokerRabbitMQ:
		sink, err := rabbitmq.New(cfg.RabbitMQURL, cfg.RabbitMQExchange)
		if err != nil {
			return nil, err
		}
		return []events.Sink{sink}, nil
	default:
		return nil, nil
	}
}
